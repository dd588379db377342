package security

import (
	"testing"

	"freightflow/backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentFilter_Check(t *testing.T) {
	filter := NewContentFilter()

	t.Run("普通文案通过", func(t *testing.T) {
		err := filter.Check(domain.NotificationPayload{
			Subject:      "Shipment FF-1001 delivered",
			EmailBody:    "<p>Your shipment from Rotterdam → Duisburg was delivered.</p>",
			InAppMessage: "FF-1001 delivered",
		})
		assert.NoError(t, err)
	})

	t.Run("多个字段含脚本", func(t *testing.T) {
		err := filter.Check(domain.NotificationPayload{
			Subject:      "hello",
			EmailBody:    `<img src=x onerror="alert(1)">`,
			InAppMessage: "<script>fetch('/x?c='+document.cookie)</script>",
		})
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		require.Len(t, ve.Violations, 2)
		assert.Equal(t, "emailBody", ve.Violations[0].Field)
		assert.Equal(t, "inAppMessage", ve.Violations[1].Field)
	})

	t.Run("大小写与伪协议", func(t *testing.T) {
		err := filter.Check(domain.NotificationPayload{Subject: `<a href="JavaScript:void(0)">x</a>`})
		assert.True(t, domain.IsValidation(err))
	})
}
