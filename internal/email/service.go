package email

import (
	"context"
)

type Service interface {
	SendInvitation(ctx context.Context, to, organizationName, inviteURL string) error
	SendRemovalNotice(ctx context.Context, to, organizationName string, effectiveDate string) error
	SendCustom(ctx context.Context, to string, subject string, content string) error
}
