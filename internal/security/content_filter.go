package security

import (
	"regexp"

	"freightflow/backend/internal/domain"
)

// ContentFilter 拦截通知文案中的可执行内容
//
// 邮件正文会以 HTML 形式在客户端渲染，站内信会直接推送到浏览器，
// 两者都不允许出现脚本、内嵌框架与事件处理属性。
type ContentFilter struct {
	// 恶意内容模式
	maliciousPatterns []*regexp.Regexp
}

// NewContentFilter 创建内容过滤器
func NewContentFilter() *ContentFilter {
	return &ContentFilter{
		maliciousPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
			regexp.MustCompile(`(?i)<script[^>]*>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)\bon(load|error|click|mouseover)\s*=`),
			regexp.MustCompile(`(?i)eval\s*\(`),
			regexp.MustCompile(`(?i)document\.cookie`),
			regexp.MustCompile(`(?i)<iframe[^>]*>`),
			regexp.MustCompile(`(?i)<object[^>]*>`),
			regexp.MustCompile(`(?i)<embed[^>]*>`),
		},
	}
}

// Check 检查通知的标题、邮件正文与站内信文案，发现可执行内容时返回 *domain.ValidationError
func (cf *ContentFilter) Check(payload domain.NotificationPayload) error {
	var v domain.Violations
	for _, field := range []struct {
		name  string
		value string
	}{
		{"subject", payload.Subject},
		{"emailBody", payload.EmailBody},
		{"inAppMessage", payload.InAppMessage},
	} {
		if cf.isMalicious(field.value) {
			v.Add(field.name, "must not contain active content")
		}
	}
	return v.Err()
}

// isMalicious 检查恶意内容
func (cf *ContentFilter) isMalicious(content string) bool {
	if content == "" {
		return false
	}
	for _, pattern := range cf.maliciousPatterns {
		if pattern.MatchString(content) {
			return true
		}
	}
	return false
}
