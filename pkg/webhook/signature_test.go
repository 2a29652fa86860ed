package webhook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leavehub/leave-api/pkg/webhook"
)

func TestVerify(t *testing.T) {
	payload := []byte(`{"meta":{"event_name":"subscription_created"}}`)
	sig := webhook.Sign("secret", payload)

	assert.NoError(t, webhook.Verify("secret", payload, sig))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"meta":{"event_name":"subscription_created"}}`)
	sig := webhook.Sign("secret", payload)

	err := webhook.Verify("secret", []byte(`{"meta":{"event_name":"subscription_updated"}}`), sig)
	assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{}`)
	sig := webhook.Sign("secret", payload)

	err := webhook.Verify("other", payload, sig)
	assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
}

func TestVerifyMissingSignature(t *testing.T) {
	err := webhook.Verify("secret", []byte(`{}`), "")
	assert.ErrorIs(t, err, webhook.ErrMissingSignature)
}

func TestVerifyMissingSecret(t *testing.T) {
	err := webhook.Verify("", []byte(`{}`), "deadbeef")
	assert.ErrorIs(t, err, webhook.ErrMissingSecret)
}

func TestSignIsDeterministic(t *testing.T) {
	payload := []byte("payload")
	require.Equal(t, webhook.Sign("secret", payload), webhook.Sign("secret", payload))
	assert.NotEqual(t, webhook.Sign("secret", payload), webhook.Sign("secret", []byte("other")))
}
