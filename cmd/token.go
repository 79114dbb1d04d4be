package cmd

import (
	"fmt"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/internal/server"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "開発用のアクセストークンを発行します。",
	Long:  `JWT_SECRET で署名した HS256 トークンを --user のユーザー向けに発行するのだ。curl や WebSocket の確認に使う。`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		auth, err := server.NewAuthenticator(cfg.JWTSecret, nil)
		if err != nil {
			return err
		}
		now := time.Now()
		tok, err := auth.IssueToken(opts.UserID, jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "有効期間なのだ。")
}
