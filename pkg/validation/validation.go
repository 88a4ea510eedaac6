// Package validation はgo-playground/validatorで入力を検証し、
// 失敗をapperror.ValidationErrorに変換する。
//
// 構造体には validate タグ（ドメインの入力）または binding タグ
// （HTTPリクエストのみの構造体）で規則を書く。どちらの場合もエラーの項目名は
// jsonタグの名前になる。
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/nao1215/encore/pkg/apperror"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	ginOnce      sync.Once
)

// get はプロセスで共有するvalidatorを返す。
func get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		configure(validate)
	})
	return validate
}

// configure はjson名の項目名とnotblank規則を設定する。
func configure(v *validator.Validate) {
	v.RegisterTagNameFunc(jsonName)
	// 登録名と関数は固定なので失敗しない。
	_ = v.RegisterValidation("notblank", validators.NotBlank)
}

// jsonName はエラーの項目名にjsonタグの名前を使う。
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	default:
		return name
	}
}

// RegisterGin はginのbindingが使うvalidatorにも同じ項目名の規則を設定する。
// 何度呼び出してもよい。
func RegisterGin() {
	ginOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			configure(v)
		}
	})
}

// Struct はsのvalidateタグを検証する。失敗した場合はmessageと項目名を持つ
// *apperror.ValidationError を返す。
func Struct(s any, message string) error {
	if err := get().Struct(s); err != nil {
		return FromError(err, message)
	}
	return nil
}

// FromError は検証やJSONの読み込みで得たエラーを *apperror.ValidationError に変換する。
// validator以外のエラー（壊れたJSONなど）は項目名なしで返す。nilの場合はnilを返す。
func FromError(err error, message string) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.NewValidationError(message)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field())
	}
	return apperror.NewValidationError(message, fields...)
}
