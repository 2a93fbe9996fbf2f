package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// dummyHash 用于未知用户名时也走一次 bcrypt，避免按响应时间枚举用户名。
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("shorturl-dummy-password"), bcrypt.DefaultCost)

// Users 是配置里的管理员账号表（ADMIN_USERS=name:bcrypthash,...）。
// 用 cmd/tools/hashpass 生成条目。
type Users struct {
	hashes map[string][]byte
}

func ParseUsers(raw string) (*Users, error) {
	u := &Users{hashes: make(map[string][]byte)}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, hash, ok := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("invalid user entry %q, want name:bcrypthash", entry)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("user %q: %w", name, err)
		}
		u.hashes[name] = []byte(hash)
	}
	return u, nil
}

func (u *Users) Len() int {
	if u == nil {
		return 0
	}
	return len(u.hashes)
}

// Authenticate 校验用户名密码，成功返回 nil。
func (u *Users) Authenticate(name, password string) error {
	var hash []byte
	if u != nil {
		hash = u.hashes[name]
	}
	if hash == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
