// keyword 在十进制 id 和短码之间换算，排查计数器或手工迁移数据时用。
//
//	go run ./cmd/tools/keyword -charset base62 encode 1000000
//	go run ./cmd/tools/keyword decode 4c92
package main

import (
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"

	"shorturl.local/internal/app/shortlink"
)

func main() {
	charsetName := flag.String("charset", "base36", "base36, base62 or a literal alphabet")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: keyword [-charset name] encode <decimal-id> | decode <keyword>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	cs, err := shortlink.CharsetByName(*charsetName)
	if err != nil {
		log.Fatal(err)
	}

	switch flag.Arg(0) {
	case "encode":
		n, ok := new(big.Int).SetString(flag.Arg(1), 10)
		if !ok || n.Sign() < 0 {
			log.Fatalf("not a non-negative integer: %q", flag.Arg(1))
		}
		fmt.Println(cs.Encode(n))
	case "decode":
		n, err := cs.Decode(flag.Arg(1))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(n.String())
	default:
		flag.Usage()
		os.Exit(2)
	}
}
