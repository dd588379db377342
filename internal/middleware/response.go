package middleware

import "github.com/gin-gonic/gin"

// abort 以统一信封结构终止请求
func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code": status,
		"msg":  msg,
		"data": nil,
	})
}
