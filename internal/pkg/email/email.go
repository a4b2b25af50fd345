package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/qhuy1504/smart-tro-server/config"
	"github.com/qhuy1504/smart-tro-server/internal/model"
	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
)

// 邮件中的时间按越南本地时间展示
var displayZone = time.FixedZone("ICT", 7*60*60)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	cfg  *config.EmailConfig
	send sendFunc
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg, send: smtp.SendMail}
}

var layout = template.Must(template.New("mail").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #2563eb;">{{.Title}}</h2>
        <p>Xin chào {{.Name}},</p>
        {{range .Lines}}<p>{{.}}</p>
        {{end}}<hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">Email được gửi tự động từ Smart Tro, vui lòng không trả lời.</p>
    </div>
</body>
</html>
`))

type mailData struct {
	Title string
	Name  string
	Lines []string
}

// SendPackageActivated 套餐生效通知
func (s *Service) SendPackageActivated(to, name, planName string, expiry *time.Time) error {
	lines := []string{fmt.Sprintf("Gói %s của bạn đã được kích hoạt.", planName)}
	if expiry != nil {
		lines = append(lines, "Hạn sử dụng: "+expiry.In(displayZone).Format("15:04 02/01/2006"))
	}
	return s.render(to, "Kích hoạt gói thành công", mailData{Title: "Kích hoạt gói thành công", Name: name, Lines: lines})
}

// SendPackageExpired 套餐到期通知
func (s *Service) SendPackageExpired(to, name, planName string) error {
	lines := []string{
		fmt.Sprintf("Gói %s của bạn đã hết hạn.", planName),
		"Các tin đăng thuộc gói đã tạm ẩn. Gia hạn để hiển thị lại.",
	}
	return s.render(to, "Gói đã hết hạn", mailData{Title: "Gói đã hết hạn", Name: name, Lines: lines})
}

// SendPaymentReceived 到账回执
func (s *Service) SendPaymentReceived(to, name, orderID string, amount int64) error {
	lines := []string{
		fmt.Sprintf("Chúng tôi đã nhận %s VND cho đơn hàng %s.", formatVND(amount), orderID),
	}
	return s.render(to, "Xác nhận thanh toán", mailData{Title: "Xác nhận thanh toán", Name: name, Lines: lines})
}

func (s *Service) render(to, subject string, data mailData) error {
	var body bytes.Buffer
	if err := layout.Execute(&body, data); err != nil {
		return fmt.Errorf("render mail: %w", err)
	}
	return s.sendHTML(to, subject, body.String())
}

// sendHTML 发送 HTML 邮件
func (s *Service) sendHTML(to, subject, body string) error {
	headers := [][2]string{
		{"From", s.cfg.From},
		{"To", to},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return s.send(addr, auth, s.cfg.From, []string{to}, []byte(msg.String()))
}

// formatVND 千位用点分隔
func formatVND(amount int64) string {
	s := fmt.Sprintf("%d", amount)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// UserLookup 按 ID 查用户，由 repository.UserRepository 实现
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// Notifier 把套餐事件转成邮件，用户没有邮箱时跳过
type Notifier struct {
	svc   *Service
	users UserLookup
}

func NewNotifier(svc *Service, users UserLookup) *Notifier {
	return &Notifier{svc: svc, users: users}
}

func (n *Notifier) Publish(ctx context.Context, event notify.Event) error {
	switch event.Type {
	case notify.EventOrderPaid, notify.EventPackageActivated, notify.EventPackageExpired:
	default:
		return nil
	}

	user, err := n.users.GetByID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", event.UserID, err)
	}
	if user.Email == nil || *user.Email == "" {
		return nil
	}
	name := user.FullName
	if name == "" {
		name = user.Username
	}

	switch event.Type {
	case notify.EventOrderPaid:
		return n.svc.SendPaymentReceived(*user.Email, name, event.OrderID, event.Amount)
	case notify.EventPackageActivated:
		var expiry *time.Time
		if cur := user.Entitlements().Current; cur != nil && cur.InstanceID == event.InstanceID {
			expiry = cur.ExpiryDate
		}
		return n.svc.SendPackageActivated(*user.Email, name, event.PlanName, expiry)
	default:
		return n.svc.SendPackageExpired(*user.Email, name, event.PlanName)
	}
}
