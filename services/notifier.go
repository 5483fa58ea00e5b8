package services

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"pitchflow-api/config"
	"pitchflow-api/models"
	"pitchflow-api/utils"
)

// Notifier receives workflow outcomes after they commit. Implementations must
// not fail the transition: delivery problems are logged, never returned to the
// caller of the state machine.
type Notifier interface {
	PitchStatusChanged(pitch *models.Pitch, previousStatus, comment string)
	PaymentStatusChanged(pitch *models.Pitch, paymentStatus string)
	ContestResultAnnounced(pitch *models.Pitch, placement string)
	ClientActionRequired(project *models.Project, pitch *models.Pitch, action string)
	PayoutScheduled(payout *models.PayoutSchedule)
}

// DBNotifier writes notification rows for the in-app feed and sends email for
// the events that warrant one.
type DBNotifier struct {
	db *gorm.DB
}

func NewDBNotifier(db *gorm.DB) *DBNotifier {
	return &DBNotifier{db: db}
}

func (n *DBNotifier) notify(userID uint, pitchID *uint, notifType, title, message string) {
	row := models.Notification{
		UserID:         userID,
		Title:          title,
		Message:        message,
		Type:           notifType,
		RelatedPitchID: pitchID,
	}
	if err := n.db.Create(&row).Error; err != nil {
		log.Printf("notifier: failed to store notification for user %d: %v", userID, err)
	}
}

func (n *DBNotifier) PitchStatusChanged(pitch *models.Pitch, previousStatus, comment string) {
	title := "Pitch status updated"
	message := fmt.Sprintf("Your pitch is now %s.", pitch.ReadableStatus())
	if comment != "" {
		message += " Note: " + comment
	}
	n.notify(pitch.UserID, &pitch.PitchID, "info", title, message)
	_ = previousStatus
}

func (n *DBNotifier) PaymentStatusChanged(pitch *models.Pitch, paymentStatus string) {
	title := "Payment update"
	message := fmt.Sprintf("Payment for your pitch is now %s.", paymentStatus)
	notifType := "info"
	if paymentStatus == models.PaymentStatusFailed {
		notifType = "error"
	}
	if paymentStatus == models.PaymentStatusPaid {
		notifType = "success"
	}
	n.notify(pitch.UserID, &pitch.PitchID, notifType, title, message)
}

func (n *DBNotifier) ContestResultAnnounced(pitch *models.Pitch, placement string) {
	var title, message string
	switch placement {
	case models.RankFirst:
		title = "Contest won!"
		message = "Congratulations, your entry was selected as the contest winner."
	case models.RankRunnerUp:
		title = "Contest runner-up"
		message = "Your entry was selected as a runner-up."
	default:
		title = "Contest results"
		message = "The contest you entered has announced its results."
	}
	n.notify(pitch.UserID, &pitch.PitchID, "success", title, message)
}

func (n *DBNotifier) ClientActionRequired(project *models.Project, pitch *models.Pitch, action string) {
	if project.ClientEmail == nil {
		return
	}
	subject := fmt.Sprintf("Action required on %s", project.Title)
	body := fmt.Sprintf("<p>Hello,</p><p>The project <strong>%s</strong> needs your attention: %s.</p>",
		project.Title, action)
	if err := config.SendMail([]string{*project.ClientEmail}, subject, body); err != nil {
		log.Printf("notifier: failed to email client for project %d: %v", project.ProjectID, err)
	}
	_ = pitch
}

func (n *DBNotifier) PayoutScheduled(payout *models.PayoutSchedule) {
	title := "Payout scheduled"
	message := fmt.Sprintf("A payout of %s has been scheduled; it will be released on %s.",
		utils.FormatMoney(payout.NetAmount, payout.Currency),
		payout.HoldReleaseDate.Format("Jan 2, 2006"))
	n.notify(payout.ProducerUserID, &payout.PitchID, "success", title, message)
}

// NopNotifier discards everything. Used in tests and the sweep binary.
type NopNotifier struct{}

func (NopNotifier) PitchStatusChanged(*models.Pitch, string, string)                  {}
func (NopNotifier) PaymentStatusChanged(*models.Pitch, string)                        {}
func (NopNotifier) ContestResultAnnounced(*models.Pitch, string)                      {}
func (NopNotifier) ClientActionRequired(*models.Project, *models.Pitch, string)       {}
func (NopNotifier) PayoutScheduled(*models.PayoutSchedule)                            {}
