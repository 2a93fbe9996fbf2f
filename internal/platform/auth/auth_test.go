package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestHS256_SignVerifyRoundTrip(t *testing.T) {
	ts, err := NewHS256Service("secret", "issuer", time.Hour)
	if err != nil {
		t.Fatalf("NewHS256Service: %v", err)
	}
	token, err := ts.Sign("alice", RoleAdmin)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "alice" || claims.Role != RoleAdmin {
		t.Fatalf("claims: got %+v", claims)
	}
	again, _ := ts.Sign("alice", RoleAdmin)
	second, _ := ts.Verify(again)
	if claims.TokenID == "" || claims.TokenID == second.TokenID {
		t.Fatalf("token ids should be unique: %q %q", claims.TokenID, second.TokenID)
	}

	if _, err := ts.Sign("", RoleAdmin); err == nil {
		t.Fatal("Sign: expected error for empty user id")
	}
}

func TestHS256_RejectsForeignTokens(t *testing.T) {
	ts, _ := NewHS256Service("secret", "issuer", time.Hour)
	other, _ := NewHS256Service("another-secret", "issuer", time.Hour)
	otherIssuer, _ := NewHS256Service("secret", "someone-else", time.Hour)
	expired, _ := NewHS256Service("secret", "issuer", time.Minute)
	expired.(*hs256Service).now = func() time.Time { return time.Now().Add(-time.Hour) }

	for name, signer := range map[string]TokenService{"secret": other, "issuer": otherIssuer, "expired": expired} {
		token, err := signer.Sign("alice", RoleAdmin)
		if err != nil {
			t.Fatalf("%s: Sign: %v", name, err)
		}
		if _, err := ts.Verify(token); err == nil {
			t.Fatalf("%s: Verify accepted a foreign token", name)
		}
	}
	if _, err := ts.Verify("not.a.token"); err == nil {
		t.Fatal("Verify accepted garbage")
	}
}

func TestHS256_ToleratesClockSkew(t *testing.T) {
	ts, _ := NewHS256Service("secret", "issuer", time.Hour)
	ahead, _ := NewHS256Service("secret", "issuer", time.Hour)
	ahead.(*hs256Service).now = func() time.Time { return time.Now().Add(2 * time.Second) }

	token, err := ahead.Sign("alice", RoleAdmin)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := ts.Verify(token); err != nil {
		t.Fatalf("token from a slightly fast clock rejected: %v", err)
	}

	farAhead, _ := NewHS256Service("secret", "issuer", time.Hour)
	farAhead.(*hs256Service).now = func() time.Time { return time.Now().Add(time.Minute) }
	token, _ = farAhead.Sign("alice", RoleAdmin)
	if _, err := ts.Verify(token); err == nil {
		t.Fatal("token not valid before a minute from now was accepted")
	}
}

func TestNewHS256Service_ValidatesInput(t *testing.T) {
	cases := []struct {
		secret, issuer string
		ttl            time.Duration
	}{
		{"", "issuer", time.Hour},
		{"short", "issuer", time.Hour},
		{"secret", "", time.Hour},
		{"secret", "issuer", 0},
	}
	for _, c := range cases {
		if _, err := NewHS256Service(c.secret, c.issuer, c.ttl); err == nil {
			t.Fatalf("NewHS256Service(%q,%q,%v): expected error", c.secret, c.issuer, c.ttl)
		}
	}
}

func TestUsers_Authenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	users, err := ParseUsers(" admin:" + string(hash) + " , ")
	if err != nil {
		t.Fatalf("ParseUsers: %v", err)
	}
	if users.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", users.Len())
	}
	if err := users.Authenticate("admin", "pw"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := users.Authenticate("admin", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if err := users.Authenticate("ghost", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", err)
	}

	var none *Users
	if none.Len() != 0 {
		t.Fatal("nil Users should be empty")
	}
	if err := none.Authenticate("admin", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("nil Users: got %v", err)
	}
}

func TestParseUsers_RejectsBadEntries(t *testing.T) {
	for _, entry := range []string{"admin", "admin:", ":hash", "admin:plaintext"} {
		if _, err := ParseUsers(entry); err == nil {
			t.Fatalf("ParseUsers(%q): expected error", entry)
		}
	}
	users, err := ParseUsers("")
	if err != nil || users.Len() != 0 {
		t.Fatalf("ParseUsers(\"\"): got %v, %v", users.Len(), err)
	}
}

func TestIdentityContext(t *testing.T) {
	if _, ok := GetIdentity(context.Background()); ok {
		t.Fatal("empty context should carry no identity")
	}
	ctx := WithIdentity(context.Background(), Identity{UserID: "alice", Role: RoleAdmin})
	id, ok := GetIdentity(ctx)
	if !ok || !id.IsAdmin() || !strings.EqualFold(id.UserID, "alice") {
		t.Fatalf("identity: got %+v, %v", id, ok)
	}
}
