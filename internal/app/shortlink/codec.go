package shortlink

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// 短码字符集。
//
// 注意：字符集是部署级配置，装机后不要再改。
// 换成另一套字符集后，老短码仍然能被当作“字符串”查到，但 Decode 出来的 id 会对不上。
const (
	Base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	Base62Alphabet = Base36Alphabet + "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var (
	ErrInvalidCharset = errors.New("invalid charset")
	ErrInvalidDigit   = errors.New("character not in charset")
)

var (
	Base36 = MustCharset(Base36Alphabet)
	Base62 = MustCharset(Base62Alphabet)
)

// Charset 是一组有序、不重复的 ASCII 字符，第 i 个字符代表数字 i。
// 进制 = len(alphabet)。
type Charset struct {
	alphabet string
	index    [256]int16
	base     *big.Int
}

func NewCharset(alphabet string) (*Charset, error) {
	if len(alphabet) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 characters, got %d", ErrInvalidCharset, len(alphabet))
	}
	c := &Charset{
		alphabet: alphabet,
		base:     big.NewInt(int64(len(alphabet))),
	}
	for i := range c.index {
		c.index[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		b := alphabet[i]
		if b <= ' ' || b >= 0x7f {
			return nil, fmt.Errorf("%w: %q is not a printable ascii character", ErrInvalidCharset, b)
		}
		if c.index[b] >= 0 {
			return nil, fmt.Errorf("%w: duplicate character %q", ErrInvalidCharset, b)
		}
		c.index[b] = int16(i)
	}
	return c, nil
}

func MustCharset(alphabet string) *Charset {
	c, err := NewCharset(alphabet)
	if err != nil {
		panic("shortlink: " + err.Error())
	}
	return c
}

// CharsetByName 解析配置项 KEYWORD_CHARSET：base36 / base62，其他值按字面字符集处理。
func CharsetByName(name string) (*Charset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "base36":
		return Base36, nil
	case "base62":
		return Base62, nil
	default:
		return NewCharset(name)
	}
}

func (c *Charset) String() string { return c.alphabet }

func (c *Charset) Len() int { return len(c.alphabet) }

func (c *Charset) Contains(r rune) bool {
	return r >= 0 && r < 256 && c.index[r] >= 0
}

// Encode 把非负整数编码成短码：先按低位到高位取余，再整体反转。
// Encode(0) == alphabet[0]。负数属于调用方 bug，直接 panic。
func (c *Charset) Encode(n *big.Int) string {
	if n.Sign() < 0 {
		panic("shortlink: cannot encode negative id " + n.String())
	}
	if n.IsUint64() {
		return c.EncodeUint64(n.Uint64())
	}

	q := new(big.Int).Set(n)
	r := new(big.Int)
	buf := make([]byte, 0, 24)
	for q.Sign() > 0 {
		q.QuoRem(q, c.base, r)
		buf = append(buf, c.alphabet[r.Int64()])
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// EncodeUint64 是 Encode 的快路径，绝大多数 id 都落在 uint64 内。
func (c *Charset) EncodeUint64(n uint64) string {
	if n == 0 {
		return c.alphabet[:1]
	}
	var buf [64]byte // base>=2 时 uint64 最多 64 位
	i := len(buf)
	base := uint64(len(c.alphabet))
	for n > 0 {
		i--
		buf[i] = c.alphabet[n%base]
		n /= base
	}
	return string(buf[i:])
}

// Decode 是 Encode 的逆运算：从高位开始 value = value*base + index。
func (c *Charset) Decode(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidDigit)
	}
	n := new(big.Int)
	d := new(big.Int)
	for i := 0; i < len(s); i++ {
		v := c.index[s[i]]
		if v < 0 {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidDigit, s[i], i)
		}
		n.Mul(n, c.base)
		n.Add(n, d.SetInt64(int64(v)))
	}
	return n, nil
}

// Keyword 让 Charset 直接充当顺序短码生成器。
func (c *Charset) Keyword(id *big.Int) (string, error) {
	return c.Encode(id), nil
}
