package shortlink

import (
	"fmt"
	"math/big"

	"github.com/sqids/sqids-go"
)

// KeywordGenerator 把计数器 id 变成候选短码。
type KeywordGenerator interface {
	Keyword(id *big.Int) (string, error)
}

// SqidsGenerator 用 sqids 打乱顺序号，避免短码被简单枚举。
// 字母表和短码字符集一致，所以生成的短码一定能通过 Sanitizer。
// 超出 uint64 的 id 退回到普通进制编码。
type SqidsGenerator struct {
	sq       *sqids.Sqids
	fallback *Charset
}

func NewSqidsGenerator(charset *Charset, minLength int) (*SqidsGenerator, error) {
	if charset == nil {
		charset = Base62
	}
	sq, err := sqids.New(sqids.Options{
		Alphabet:  charset.String(),
		MinLength: uint8(minLength),
	})
	if err != nil {
		return nil, fmt.Errorf("sqids init: %w", err)
	}
	return &SqidsGenerator{sq: sq, fallback: charset}, nil
}

func (g *SqidsGenerator) Keyword(id *big.Int) (string, error) {
	if !id.IsUint64() {
		return g.fallback.Encode(id), nil
	}
	return g.sq.Encode([]uint64{id.Uint64()})
}
