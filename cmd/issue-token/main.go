package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	jwtpkg "github.com/vladikoff/email2feed/internal/auth/jwt"
	"github.com/vladikoff/email2feed/internal/config"
)

// issue-token 为所有者签发访问令牌与刷新令牌，供本地开发调用所有者 API。
func main() {
	owner := flag.String("owner", "", "所有者标识，例如邮箱地址")
	flag.Parse()

	if *owner == "" && flag.NArg() > 0 {
		*owner = flag.Arg(0)
	}
	if *owner == "" {
		fmt.Println("Usage: issue-token -owner <identity>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	pair, err := jwtpkg.NewManager(&cfg.JWT).GenerateTokenPair(*owner)
	if err != nil {
		fmt.Printf("Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(pair); err != nil {
		fmt.Printf("Failed to write token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "\nexample:\n  curl -H 'Authorization: Bearer %s' http://%s/v1/account\n", pair.AccessToken, cfg.Server.Addr())
}
