package emailsvc

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/academiahub/backend/core"
)

type consoleService struct {
	subjPrefix    string
	disableOutput bool

	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*consoleService)(nil)

// NewConsoleService writes emails to stdout; used in DEV.
func NewConsoleService(conf *core.Config) core.EmailService {
	return &consoleService{subjPrefix: "[" + conf.AppName + "] "}
}

// NewConsoleServiceMock records messages without printing; used in tests.
func NewConsoleServiceMock(conf *core.Config) *consoleService {
	return &consoleService{subjPrefix: "[" + conf.AppName + "] ", disableOutput: true}
}

func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		svc.sendMessage(msg)
	}
}

func (svc *consoleService) sendMessage(msg *core.EmailMessage) {
	if !msg.HasRecipients() || !msg.HasContent() {
		return
	}

	svc.mu.Lock()
	svc.sent = append(svc.sent, *msg)
	svc.mu.Unlock()

	if svc.disableOutput {
		return
	}
	tos := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		tos = append(tos, to.String())
	}
	log.Print(fmt.Sprintf(
		"\n--- EMAIL ---\nTo: %s\nSubject: %s%s\n\n%s\n-------------\n",
		strings.Join(tos, ", "), svc.subjPrefix, msg.Subject, msg.BodyStr,
	))
}

// SentMessages returns a copy of everything sent so far.
func (svc *consoleService) SentMessages() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]core.EmailMessage, len(svc.sent))
	copy(out, svc.sent)
	return out
}

// Reset clears the recorded messages.
func (svc *consoleService) Reset() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sent = nil
}
