package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klappy/obt-helper-gpt/internal/errors"
	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/store"
	"github.com/klappy/obt-helper-gpt/pkg/twilio"
)

const (
	linkCodeKeyPrefix = "link-code-"
	linkCodeTTL       = 10 * time.Minute
)

// phoneNumberRe is the accepted E.164-like shape: "+" then 10-15 digits.
var phoneNumberRe = regexp.MustCompile(`^\+\d{10,15}$`)

// LinkingService pairs a web browser session with a WhatsApp phone number
// through a 6-digit verification code delivered over WhatsApp.
type LinkingService struct {
	codes    store.Store
	sessions store.Store
	sender   twilio.Sender
	logger   *logrus.Logger
	now      func() time.Time
}

func NewLinkingService(codes, sessions store.Store, sender twilio.Sender, logger *logrus.Logger) *LinkingService {
	return &LinkingService{
		codes:    codes,
		sessions: sessions,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
	}
}

// RequestLink generates a verification code for the phone number, stores it
// with a 10-minute TTL (overwriting any previous code), and sends it over
// WhatsApp.
func (l *LinkingService) RequestLink(ctx context.Context, phoneNumber, webSessionID, toolID string) error {
	if !phoneNumberRe.MatchString(phoneNumber) {
		return errors.NewValidationError("phoneNumber", phoneNumber, "must be + followed by 10-15 digits, e.g. +1234567890")
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	record := models.LinkVerificationCode{
		Code:      code,
		SessionID: webSessionID,
		ToolID:    toolID,
		Expires:   l.now().Add(linkCodeTTL).UnixMilli(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode verification code: %w", err)
	}
	if err := l.codes.Set(ctx, linkCodeKeyPrefix+phoneNumber, string(payload)); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	body := fmt.Sprintf("🔗 *OBT Helper Link Code*\n\nYour verification code: *%s*\n\nThis code expires in 10 minutes.\n\nUse this code on the website to sync your web chat with WhatsApp! 🚀", code)
	if err := l.sender.SendMessage(phoneNumber, body); err != nil {
		return errors.Wrap(err, errors.ErrCodeTransport, "failed to send verification code").
			WithUserMessage("Failed to send code. Please check your phone number.")
	}

	l.logger.WithField("phone", maskPhone(phoneNumber)).Info("Link code sent")
	return nil
}

// Verify checks the submitted code and, on success, writes both directional
// link views concurrently, deletes the consumed code, and returns the link.
func (l *LinkingService) Verify(ctx context.Context, phoneNumber, code, webSessionID string) (*models.SessionLink, error) {
	stored, key, err := l.loadCode(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errors.NewCodeNotFoundError(phoneNumber)
	}

	if stored.Expired(l.now()) {
		// Consume the stale code so a later retry reports not-found.
		if delErr := l.codes.Delete(ctx, key); delErr != nil {
			l.logger.WithError(delErr).Warn("Failed to delete expired link code")
		}
		return nil, errors.NewCodeExpiredError(phoneNumber)
	}

	if stored.Code != code {
		return nil, errors.NewCodeMismatchError(phoneNumber)
	}

	link := &models.SessionLink{
		WebSessionID:      webSessionID,
		WhatsAppSessionID: models.WhatsAppSessionID(phoneNumber),
		PhoneNumber:       phoneNumber,
		ToolID:            stored.ToolID,
		LinkedAt:          l.now().UTC(),
		LastSyncAt:        l.now().UTC(),
	}

	payload, err := json.Marshal(link)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session link: %w", err)
	}

	// Both views are independent keys; write them in flight together.
	var wg sync.WaitGroup
	var webErr, waErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		webErr = l.sessions.Set(ctx, models.WebToWhatsAppKey(webSessionID), string(payload))
	}()
	go func() {
		defer wg.Done()
		waErr = l.sessions.Set(ctx, models.WhatsAppToWebKey(link.WhatsAppSessionID), string(payload))
	}()
	wg.Wait()
	if webErr != nil {
		return nil, fmt.Errorf("failed to store web link view: %w", webErr)
	}
	if waErr != nil {
		return nil, fmt.Errorf("failed to store whatsapp link view: %w", waErr)
	}

	if err := l.codes.Delete(ctx, key); err != nil {
		l.logger.WithError(err).Warn("Failed to delete consumed link code")
	}

	l.logger.WithFields(logrus.Fields{
		"web_session":      webSessionID,
		"whatsapp_session": link.WhatsAppSessionID,
	}).Info("Sessions linked")
	return link, nil
}

// LinkForWebSession resolves the link for a web session id, nil when unlinked.
func (l *LinkingService) LinkForWebSession(ctx context.Context, webSessionID string) *models.SessionLink {
	return l.loadLink(ctx, models.WebToWhatsAppKey(webSessionID))
}

// LinkForWhatsAppSession resolves the link for a WhatsApp session id.
func (l *LinkingService) LinkForWhatsAppSession(ctx context.Context, whatsappSessionID string) *models.SessionLink {
	return l.loadLink(ctx, models.WhatsAppToWebKey(whatsappSessionID))
}

// Unlink removes both directional views of a link.
func (l *LinkingService) Unlink(ctx context.Context, link *models.SessionLink) {
	if err := l.sessions.Delete(ctx, models.WebToWhatsAppKey(link.WebSessionID)); err != nil {
		l.logger.WithError(err).Warn("Failed to delete web link view")
	}
	if err := l.sessions.Delete(ctx, models.WhatsAppToWebKey(link.WhatsAppSessionID)); err != nil {
		l.logger.WithError(err).Warn("Failed to delete whatsapp link view")
	}
}

func (l *LinkingService) loadLink(ctx context.Context, key string) *models.SessionLink {
	value, found, err := l.sessions.Get(ctx, key)
	if err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("Link lookup failed")
		return nil
	}
	if !found {
		return nil
	}
	var link models.SessionLink
	if err := json.Unmarshal([]byte(value), &link); err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("Link decode failed")
		return nil
	}
	return &link
}

// loadCode fetches the stored code, falling back to the raw phone number
// for records written before normalization.
func (l *LinkingService) loadCode(ctx context.Context, phoneNumber string) (*models.LinkVerificationCode, string, error) {
	for _, key := range []string{linkCodeKeyPrefix + normalizePhone(phoneNumber), linkCodeKeyPrefix + phoneNumber} {
		value, found, err := l.codes.Get(ctx, key)
		if err != nil {
			return nil, "", errors.NewStoreError("get", err)
		}
		if !found {
			continue
		}
		var code models.LinkVerificationCode
		if err := json.Unmarshal([]byte(value), &code); err != nil {
			return nil, "", fmt.Errorf("failed to decode verification code: %w", err)
		}
		return &code, key, nil
	}
	return nil, "", nil
}

// generateCode produces a random 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// normalizePhone strips everything but digits and the leading plus.
func normalizePhone(phoneNumber string) string {
	out := make([]byte, 0, len(phoneNumber))
	for i := 0; i < len(phoneNumber); i++ {
		c := phoneNumber[i]
		if c >= '0' && c <= '9' || (c == '+' && i == 0) {
			out = append(out, c)
		}
	}
	return string(out)
}

// maskPhone hides the middle digits of a phone number for logging.
func maskPhone(phoneNumber string) string {
	if len(phoneNumber) < 5 {
		return "***"
	}
	return phoneNumber[:3] + "****" + phoneNumber[len(phoneNumber)-2:]
}
