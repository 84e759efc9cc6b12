// Package validation はリクエストの入力検証と日本語のエラーメッセージを提供する。
//
// Ginのバインディングが使うvalidatorに日本語翻訳と独自タグ
// （date, yearmonth, hhmm）を登録する。
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/ja"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	ja_translations "github.com/go-playground/validator/v10/translations/ja"
)

var (
	setupOnce  sync.Once
	translator ut.Translator
	validate   *validator.Validate
)

// hhmmRegex は "HH:MM" 形式の時刻。
var hhmmRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// customTags は独自タグと日本語メッセージ。
var customTags = map[string]string{
	"date":      "{0}はYYYY-MM-DD形式の日付で入力してください",
	"yearmonth": "{0}はYYYY-MM形式の年月で入力してください",
	"hhmm":      "{0}はHH:MM形式の時刻で入力してください",
}

// FieldError は1項目分の検証エラー。
type FieldError struct {
	// Field はJSONのフィールド名。
	Field string `json:"field"`
	// Message は日本語のエラーメッセージ。
	Message string `json:"message"`
	// Type は失敗した検証タグ（例: required）。
	Type string `json:"type"`
}

// Setup はGinのvalidatorに日本語翻訳と独自タグを登録する。複数回呼んでも1回だけ実行される。
func Setup() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			v = validator.New()
		}
		validate = v

		locale := ja.New()
		uni := ut.New(locale, locale)
		translator, _ = uni.GetTranslator("ja")
		_ = ja_translations.RegisterDefaultTranslations(v, translator)

		// エラーのフィールド名にはJSONタグ名を使う
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
			_, err := time.Parse("2006-01-02", fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("yearmonth", func(fl validator.FieldLevel) bool {
			_, err := time.Parse("2006-01", fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			return hhmmRegex.MatchString(fl.Field().String())
		})
		for tag, text := range customTags {
			registerTranslation(v, tag, text)
		}
	})
}

// registerTranslation は独自タグの翻訳を登録する。
func registerTranslation(v *validator.Validate, tag, text string) {
	_ = v.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Struct は構造体を検証する。
func Struct(s any) error {
	Setup()
	return validate.Struct(s)
}

// Details は検証エラーを日本語メッセージの一覧に変換する。
// validator以外のエラーの場合はnilを返す。
func Details(err error) []FieldError {
	Setup()
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{
			Field:   fe.Field(),
			Message: fe.Translate(translator),
			Type:    fe.Tag(),
		})
	}
	return details
}

// ErrorResponse はバインドエラーのレスポンスボディを生成する。
func ErrorResponse(err error) gin.H {
	if details := Details(err); details != nil {
		return gin.H{"error": "入力内容に誤りがあります", "details": details}
	}
	return gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)}
}

// BindJSON はリクエストボディをobjにバインドして検証する。
// 失敗した場合は400レスポンスを書き込んでfalseを返す。
func BindJSON(c *gin.Context, obj any) bool {
	Setup()
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err))
		return false
	}
	return true
}

// BindQuery はクエリパラメータをobjにバインドして検証する。
func BindQuery(c *gin.Context, obj any) bool {
	Setup()
	if err := c.ShouldBindQuery(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err))
		return false
	}
	return true
}
