package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// 用法：go run ./cmd/tools/hashpass <username> <password>
// 输出一条 ADMIN_USERS 条目（name:bcrypthash），多个用户用逗号拼起来。
func main() {
	if len(os.Args) != 3 {
		log.Fatal("usage: go run ./cmd/tools/hashpass <username> <password>")
	}
	name := strings.TrimSpace(os.Args[1])
	if name == "" || strings.ContainsAny(name, ":,") {
		log.Fatal("username must be non-empty and must not contain ':' or ','")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[2]), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s:%s\n", name, hash)
}
