package mailer

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// テンプレート名。
const (
	TemplateEmailVerification = "email_verification"
	TemplatePasswordReset     = "password_reset"
)

// ErrTemplateNotFound は未登録のテンプレートが指定されたことを表す。
var ErrTemplateNotFound = errors.New("mail template not found")

// Template は件名と本文のテンプレートの組。
type Template struct {
	subject *template.Template
	body    *template.Template
}

// TemplateData はテンプレートに渡す値。
type TemplateData struct {
	LoginID string
	Link    string
	Expires string
}

var builtinTemplates = map[string][2]string{
	TemplateEmailVerification: {
		"メールアドレスの確認",
		`{{.LoginID}} 様

ご登録ありがとうございます。
以下のリンクからメールアドレスの確認を完了してください。

{{.Link}}

このリンクの有効期限は{{.Expires}}です。
`,
	},
	TemplatePasswordReset: {
		"パスワード再設定のご案内",
		`{{.LoginID}} 様

パスワード再設定のリクエストを受け付けました。
以下のリンクから新しいパスワードを設定してください。

{{.Link}}

このリンクの有効期限は{{.Expires}}です。
心当たりがない場合はこのメールを破棄してください。
`,
	},
}

// TemplateRegistry はテンプレートの一覧。生成後は変更しない。
type TemplateRegistry struct {
	templates map[string]*Template
}

// NewTemplateRegistry は組み込みテンプレートを登録したTemplateRegistryを生成する。
func NewTemplateRegistry() (*TemplateRegistry, error) {
	r := &TemplateRegistry{templates: make(map[string]*Template, len(builtinTemplates))}
	for name, src := range builtinTemplates {
		subject, err := template.New(name + "_subject").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s subject template: %w", name, err)
		}
		body, err := template.New(name + "_body").Option("missingkey=error").Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s body template: %w", name, err)
		}
		r.templates[name] = &Template{subject: subject, body: body}
	}
	return r, nil
}

// Render はテンプレートを展開し、宛先未設定のEmailを返す。
func (r *TemplateRegistry) Render(name string, data TemplateData) (*Email, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	var subject, body strings.Builder
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}

	return &Email{Subject: subject.String(), Body: body.String()}, nil
}
