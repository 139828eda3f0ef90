// Package template renders out-of-band mail bodies.
//
// 지원하는 변수 형식:
//
//	{{user.name}}, {{user.email}}
//	{{reset.url}}, {{reset.expires_at}}
package template

import (
	"html"
	"strings"
	"time"

	"github.com/amazona/backend/internal/model"
)

const DefaultResetSubject = "Reset Password"

const DefaultResetBody = `
<p>Hi {{user.name}},</p>
<p>Please Click the following link to reset your password:</p>
<a href="{{reset.url}}">Reset Password</a>
<p>The link expires at {{reset.expires_at}}.</p>
`

// UserData - 템플릿 렌더링에 사용할 User 데이터
type UserData struct {
	Name  string
	Email string
}

// ResetData - 템플릿 렌더링에 사용할 reset link 데이터
type ResetData struct {
	URL       string
	ExpiresAt time.Time
}

func UserDataFromModel(u *model.User) UserData {
	return UserData{Name: u.Name, Email: u.Email}
}

// ResetURL joins the front-end base URL and the token the way the
// front-end router expects it: {base}/reset-password/{token}.
func ResetURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/reset-password/" + token
}

// RenderBody - body 템플릿의 변수를 실제 값으로 치환
//
// nil로 전달된 항목의 변수는 빈 문자열로 치환됩니다. 값은 HTML escape 됩니다.
func RenderBody(body string, user *UserData, reset *ResetData) string {
	pairs := make([]string, 0, 8)

	if user != nil {
		pairs = append(pairs,
			"{{user.name}}", html.EscapeString(user.Name),
			"{{user.email}}", html.EscapeString(user.Email),
		)
	} else {
		pairs = append(pairs,
			"{{user.name}}", "",
			"{{user.email}}", "",
		)
	}

	if reset != nil {
		expiresAt := ""
		if !reset.ExpiresAt.IsZero() {
			expiresAt = reset.ExpiresAt.UTC().Format(time.RFC1123)
		}
		pairs = append(pairs,
			"{{reset.url}}", html.EscapeString(reset.URL),
			"{{reset.expires_at}}", expiresAt,
		)
	} else {
		pairs = append(pairs,
			"{{reset.url}}", "",
			"{{reset.expires_at}}", "",
		)
	}

	return strings.NewReplacer(pairs...).Replace(body)
}
