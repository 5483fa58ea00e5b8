package services

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pitchflow-api/config"
	"pitchflow-api/models"
)

var testDBSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A plain ":memory:" DSN gives every pooled connection its own empty
	// database; a named shared-cache DSN keeps all connections on one DB
	// while the sequence number isolates tests from each other.
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.Pitch{},
		&models.PitchSnapshot{},
		&models.PitchMilestone{},
		&models.PitchEvent{},
		&models.PitchFile{},
		&models.PayoutSchedule{},
		&models.Transaction{},
		&models.ContestResult{},
		&models.Notification{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

type testStack struct {
	db        *gorm.DB
	workflow  *PitchWorkflowService
	milestone *MilestoneService
	payouts   *PayoutService
	judging   *ContestJudgingService
	projects  *ProjectService
	files     *PitchFileService
	hold      *PayoutHoldService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db := newTestDB(t)
	hold := NewPayoutHoldService(config.DefaultPayoutHoldConfig())
	payouts := NewPayoutService(db, hold)
	files := NewPitchFileService(db, nil)
	milestone := NewMilestoneService(db, payouts, NopNotifier{})
	workflow := NewPitchWorkflowService(db, NopNotifier{}, milestone, payouts, files, ManualInvoicer{})
	judging := NewContestJudgingService(db, workflow)
	projects := NewProjectService(db, NopNotifier{})
	return &testStack{
		db:        db,
		workflow:  workflow,
		milestone: milestone,
		payouts:   payouts,
		judging:   judging,
		projects:  projects,
		files:     files,
		hold:      hold,
	}
}

func createTestUser(t *testing.T, db *gorm.DB, name, tier string) *models.User {
	t.Helper()
	user := models.User{
		Name:        name,
		Email:       name + "@example.com",
		Password:    "hashed",
		Role:        models.RoleUser,
		AccountTier: tier,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return &user
}

func createTestAdmin(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	admin := models.User{
		Name:        "admin",
		Email:       "admin@example.com",
		Password:    "hashed",
		Role:        models.RoleAdmin,
		AccountTier: models.TierFree,
	}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return &admin
}

func createTestProject(t *testing.T, db *gorm.DB, ownerID uint, workflowType string, budget decimal.Decimal) *models.Project {
	t.Helper()
	project := models.Project{
		UserID:       ownerID,
		Title:        "Test Project",
		WorkflowType: workflowType,
		Status:       models.ProjectStatusOpen,
		Budget:       budget,
		PrizeAmount:  budget,
	}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	return &project
}

func addTestFile(t *testing.T, db *gorm.DB, pitchID, uploaderID uint) *models.PitchFile {
	t.Helper()
	file := models.PitchFile{
		PitchID:      pitchID,
		OriginalName: "mix.wav",
		StoredPath:   "uploads/mix.wav",
		FileSize:     2048,
		MimeType:     "audio/wav",
		UploadedBy:   uploaderID,
	}
	if err := db.Create(&file).Error; err != nil {
		t.Fatalf("create pitch file: %v", err)
	}
	return &file
}

func reloadPitch(t *testing.T, db *gorm.DB, pitchID uint) *models.Pitch {
	t.Helper()
	var pitch models.Pitch
	if err := db.Preload("Project").First(&pitch, "pitch_id = ?", pitchID).Error; err != nil {
		t.Fatalf("reload pitch %d: %v", pitchID, err)
	}
	return &pitch
}
