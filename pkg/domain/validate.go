package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// ボイス ID は固定リストの中から選ぶのだ
	_ = v.RegisterValidation("voice", func(fl validator.FieldLevel) bool {
		return IsVoice(fl.Field().String())
	})
	return v
}

// Validate はエンティティの構造タグを検証します。
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("入力値の検証に失敗しました: %w", err)
	}
	return nil
}
