// Command admintoken 签发用于修改类别 schema 的管理员 JWT。
package main

import (
	"flag"
	"fmt"
	"os"

	"datapilot-go/internal/config"
	"datapilot-go/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	subject := flag.String("subject", "admin", "token 持有者")
	role := flag.String("role", token.RoleAdmin, "token 角色")
	flag.Parse()

	config.Init(*configPath)
	jwtManager := token.NewJWTManager(config.Conf.JWT.Secret, config.Conf.JWT.AccessTokenExpireHours)
	tokenString, err := jwtManager.GenerateToken(*subject, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "签发 token 失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tokenString)
}
