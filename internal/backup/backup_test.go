package backup

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/labelpizza/backend/internal/config"
	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/testutil"
	"gorm.io/gorm"
)

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

func seed(t *testing.T) (*gorm.DB, *testutil.Fixtures) {
	t.Helper()
	db := testutil.NewTestDB(t)
	f := testutil.SetupFixtures(t, db)
	now := time.Now()
	answers := []models.AnnotatorAnswer{
		{VideoID: f.Videos[0].ID, ProjectID: f.Project.ID, UserID: f.Annotator.ID, QuestionID: f.PeopleCount.ID, AnswerValue: "1", CreatedAt: now, ModifiedAt: now},
		{VideoID: f.Videos[0].ID, ProjectID: f.Project.ID, UserID: f.Annotator.ID, QuestionID: f.PeopleDesc.ID, AnswerValue: "a man walking", CreatedAt: now, ModifiedAt: now},
	}
	if err := db.Create(&answers).Error; err != nil {
		t.Fatalf("seed answers: %v", err)
	}
	return db, f
}

func TestService_BackupRestore(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			db, f := seed(t)
			svc := NewService(db, t.TempDir())
			ctx := context.Background()

			res, err := svc.Backup(ctx, BackupOptions{Compress: compress})
			if err != nil {
				t.Fatalf("Backup() error = %v", err)
			}
			if res.Rows["users"] != 5 || res.Rows["annotator_answers"] != 2 {
				t.Errorf("Rows = %v, expected 5 users and 2 answers", res.Rows)
			}
			if compress != strings.HasSuffix(res.Path, ".json.gz") {
				t.Errorf("Path = %s, compress = %v", res.Path, compress)
			}

			// Wreck the data, then restore.
			db.Where("1 = 1").Delete(&models.AnnotatorAnswer{})
			db.Model(&models.Question{}).Where("id = ?", f.PeopleCount.ID).Update("display_text", "changed")
			extra := testutil.CreateVideo(t, db, "video_003.mp4")

			restored, err := svc.Restore(ctx, res.Path)
			if err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			if len(restored.Warnings) != 0 {
				t.Errorf("Warnings = %v, expected none", restored.Warnings)
			}
			if n := countRows(t, db, &models.AnnotatorAnswer{}); n != 2 {
				t.Errorf("answers = %d, expected 2", n)
			}
			if n := countRows(t, db, &models.Video{}); n != 2 {
				t.Errorf("videos = %d, expected 2", n)
			}
			var missing int64
			db.Model(&models.Video{}).Where("id = ?", extra.ID).Count(&missing)
			if missing != 0 {
				t.Error("video created after the backup survived the restore")
			}

			var q models.Question
			if err := db.First(&q, f.PeopleCount.ID).Error; err != nil {
				t.Fatalf("load question: %v", err)
			}
			if q.DisplayText != f.PeopleCount.Text {
				t.Errorf("DisplayText = %q, expected restored %q", q.DisplayText, f.PeopleCount.Text)
			}
			if len(q.Options) != 3 || q.Options[2] != "2+" || q.DefaultOption == nil || *q.DefaultOption != "0" {
				t.Errorf("question = %+v, expected options and default restored", q)
			}

			var group models.QuestionGroup
			db.First(&group, f.WeatherGroup.ID)
			if !group.IsReusable {
				t.Error("IsReusable lost in restore")
			}
			var role models.ProjectUserRole
			db.Where("user_id = ?", f.Annotator.ID).First(&role)
			if role.UserWeight != 1 || role.AssignedAt.IsZero() {
				t.Errorf("role = %+v, expected weight and time restored", role)
			}
		})
	}
}

func writeRawDump(t *testing.T, path string, dump map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(dump)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestService_RestoreDropsUnknownColumns(t *testing.T) {
	db := testutil.NewTestDB(t)
	dir := t.TempDir()
	svc := NewService(db, dir)

	path := filepath.Join(dir, "legacy.json")
	writeRawDump(t, path, map[string]interface{}{
		"version":    FormatVersion,
		"created_at": time.Now().UTC(),
		"driver":     "sqlite",
		"tables": []map[string]interface{}{
			{"name": "videos", "rows": []map[string]interface{}{{
				"id": 7, "video_uid": "legacy.mp4", "url": "https://videos.test/legacy.mp4",
				"metadata": `{"fps":30}`, "tags": `[]`, "is_archived": false,
				"created_at": "2024-05-01T10:00:00Z", "updated_at": "2024-05-01T10:00:00Z",
				"legacy_flag": true,
			}}},
			{"name": "retired_table", "rows": []map[string]interface{}{{"id": 1}}},
		},
	})

	res, err := svc.Restore(context.Background(), "legacy.json")
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("Warnings = %v, expected unknown table and unknown column", res.Warnings)
	}
	joined := strings.Join(res.Warnings, "\n")
	if !strings.Contains(joined, "legacy_flag") || !strings.Contains(joined, "retired_table") {
		t.Errorf("Warnings = %v", res.Warnings)
	}

	var v models.Video
	if err := db.First(&v, 7).Error; err != nil {
		t.Fatalf("restored video missing: %v", err)
	}
	if v.VideoUID != "legacy.mp4" || v.CreatedAt.Year() != 2024 {
		t.Errorf("video = %+v", v)
	}
}

func TestService_RestoreRejectsBadFiles(t *testing.T) {
	db, _ := seed(t)
	dir := t.TempDir()
	svc := NewService(db, dir)
	ctx := context.Background()

	corrupt := filepath.Join(dir, "corrupt.json")
	os.WriteFile(corrupt, []byte(`{"version": 1, "tables": [`), 0644)
	if _, err := svc.Restore(ctx, corrupt); err == nil {
		t.Error("expected error for a corrupt file")
	}

	future := filepath.Join(dir, "future.json")
	writeRawDump(t, future, map[string]interface{}{"version": 99, "tables": []interface{}{}})
	if _, err := svc.Restore(ctx, future); err == nil || !strings.Contains(err.Error(), "version") {
		t.Errorf("Restore(future) error = %v, expected version error", err)
	}

	if _, err := svc.Restore(ctx, filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}

	// Nothing was touched.
	if n := countRows(t, db, &models.AnnotatorAnswer{}); n != 2 {
		t.Errorf("answers = %d, expected 2", n)
	}
}

func TestReadDump_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.bin")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(file)
	gz.Write([]byte(`{"version":1,"driver":"postgres","tables":[{"name":"users","rows":[{"id":3}]}]}`))
	gz.Close()
	file.Close()

	dump, err := ReadDump(path)
	if err != nil {
		t.Fatalf("ReadDump() error = %v", err)
	}
	if dump.Driver != "postgres" || len(dump.Tables) != 1 {
		t.Fatalf("dump = %+v", dump)
	}
	if id, ok := dump.Tables[0].Rows[0]["id"].(json.Number); !ok || id.String() != "3" {
		t.Errorf("id = %#v, expected json.Number 3", dump.Tables[0].Rows[0]["id"])
	}
}

func TestService_Lock(t *testing.T) {
	db := testutil.NewTestDB(t)
	dir := t.TempDir()
	svc := NewService(db, dir)

	held := flock.New(filepath.Join(dir, lockFile))
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer held.Unlock()

	if _, err := svc.Backup(context.Background(), BackupOptions{}); !errors.Is(err, ErrLocked) {
		t.Errorf("Backup() error = %v, expected ErrLocked", err)
	}
}

func TestService_ListAndPrune(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(nil, dir)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	for i := 0; i < 4; i++ {
		name := FileName(base.Add(time.Duration(i)*time.Hour), i%2 == 1)
		os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644)
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "labelpizza_backup_garbage.json"), []byte("x"), 0644)

	files, err := svc.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("List() = %d files, expected 4", len(files))
	}
	if files[0].Name != "labelpizza_backup_20260301_150000.json.gz" || !files[0].Compressed {
		t.Errorf("newest = %+v", files[0])
	}

	removed, err := svc.Prune(2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if len(removed) != 2 || removed[1] != "labelpizza_backup_20260301_120000.json" {
		t.Errorf("removed = %v, expected the two oldest", removed)
	}
	files, _ = svc.List()
	if len(files) != 2 {
		t.Errorf("after prune = %d files, expected 2", len(files))
	}

	empty := NewService(nil, filepath.Join(dir, "nope"))
	if files, err := empty.List(); err != nil || len(files) != 0 {
		t.Errorf("List(missing dir) = %v, %v", files, err)
	}
}

func TestService_Reset(t *testing.T) {
	ctx := context.Background()
	seedAdmin := func(ctx context.Context, db *gorm.DB) error {
		return db.Create(&models.User{Username: "root", UserType: models.UserTypeAdmin, Password: "x"}).Error
	}

	t.Run("reset", func(t *testing.T) {
		db, _ := seed(t)
		svc := NewService(db, t.TempDir())

		res, err := svc.Reset(ctx, ResetOptions{Mode: ModeReset, Seed: seedAdmin})
		if err != nil {
			t.Fatalf("Reset() error = %v", err)
		}
		if res.Backup == nil || res.Backup.Rows["users"] != 5 {
			t.Errorf("safety backup = %+v", res.Backup)
		}
		if n := countRows(t, db, &models.User{}); n != 1 {
			t.Errorf("users = %d, expected only the seeded admin", n)
		}
		if n := countRows(t, db, &models.Project{}); n != 0 {
			t.Errorf("projects = %d, expected 0", n)
		}

		// restore brings back the safety backup.
		res2, err := svc.Reset(ctx, ResetOptions{Mode: ModeRestore, Input: res.Backup.Path, SkipBackup: true})
		if err != nil {
			t.Fatalf("Reset(restore) error = %v", err)
		}
		if res2.Backup != nil {
			t.Error("SkipBackup ignored")
		}
		if n := countRows(t, db, &models.User{}); n != 5 {
			t.Errorf("users after restore = %d, expected 5", n)
		}
	})

	t.Run("init keeps data", func(t *testing.T) {
		db, _ := seed(t)
		svc := NewService(db, t.TempDir())
		res, err := svc.Reset(ctx, ResetOptions{Mode: ModeInit})
		if err != nil {
			t.Fatalf("Reset(init) error = %v", err)
		}
		if res.Backup != nil {
			t.Error("init should not back up")
		}
		if n := countRows(t, db, &models.User{}); n != 5 {
			t.Errorf("users = %d, expected 5", n)
		}
	})

	t.Run("backup only", func(t *testing.T) {
		db, _ := seed(t)
		svc := NewService(db, t.TempDir())
		res, err := svc.Reset(ctx, ResetOptions{Mode: ModeBackup, SkipBackup: true})
		if err != nil {
			t.Fatalf("Reset(backup) error = %v", err)
		}
		if res.Backup == nil {
			t.Fatal("expected a backup")
		}
		if _, err := os.Stat(res.Backup.Path); err != nil {
			t.Errorf("backup file: %v", err)
		}
	})

	t.Run("bad input", func(t *testing.T) {
		db, _ := seed(t)
		svc := NewService(db, t.TempDir())
		if _, err := svc.Reset(ctx, ResetOptions{Mode: "explode"}); err == nil {
			t.Error("expected error for unknown mode")
		}
		if _, err := svc.Reset(ctx, ResetOptions{Mode: ModeRestore}); err == nil {
			t.Error("expected error for restore without input")
		}
		if _, err := svc.Reset(ctx, ResetOptions{Mode: ModeRestore, Input: "missing.json"}); err == nil {
			t.Error("expected error for a missing restore file")
		}
		if n := countRows(t, db, &models.User{}); n != 5 {
			t.Errorf("users = %d, a failed restore must not drop data", n)
		}
	})
}

func TestSchedulerLock(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	ok, err := AcquireLock(ctx, db, "job", "k", "a", time.Hour)
	if err != nil || !ok {
		t.Fatalf("AcquireLock(a) = %v, %v", ok, err)
	}
	ok, _ = AcquireLock(ctx, db, "job", "k", "b", time.Hour)
	if ok {
		t.Error("b acquired a held lock")
	}
	if err := ReleaseLock(ctx, db, "job", "k", "b"); err != nil {
		t.Fatalf("ReleaseLock(b) error = %v", err)
	}
	if n := countRows(t, db, &models.SchedulerLock{}); n != 1 {
		t.Error("a non-holder released the lock")
	}
	if err := ReleaseLock(ctx, db, "job", "k", "a"); err != nil {
		t.Fatalf("ReleaseLock(a) error = %v", err)
	}
	ok, _ = AcquireLock(ctx, db, "job", "k", "b", -time.Second)
	if !ok {
		t.Fatal("b could not acquire a free lock")
	}
	// b's lock was born expired, so c takes it over.
	ok, _ = AcquireLock(ctx, db, "job", "k", "c", time.Hour)
	if !ok {
		t.Error("c could not take over an expired lock")
	}
}

func TestScheduler(t *testing.T) {
	db, _ := seed(t)
	dir := t.TempDir()
	svc := NewService(db, dir)

	bad := NewScheduler(svc, db, config.BackupConfig{Schedule: "not a schedule"})
	if err := bad.Start(); err == nil {
		t.Error("expected error for invalid schedule")
	}

	idle := NewScheduler(svc, db, config.BackupConfig{})
	if err := idle.Start(); err != nil {
		t.Fatalf("Start(idle) error = %v", err)
	}
	if !idle.Next().IsZero() {
		t.Error("idle scheduler reports a next run")
	}

	sched := NewScheduler(svc, db, config.BackupConfig{Schedule: "0 3 * * *", Keep: 1, Compress: true})
	if err := sched.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if next := sched.Next(); next.Hour() != 3 {
		t.Errorf("Next() = %v, expected 03:00", next)
	}
	sched.Stop()

	// A stale file is pruned once the new backup lands.
	os.WriteFile(filepath.Join(dir, FileName(time.Now().Add(-48*time.Hour), false)), []byte("{}"), 0644)
	res, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if res == nil || !strings.HasSuffix(res.Path, ".json.gz") {
		t.Fatalf("RunOnce() = %+v", res)
	}
	files, _ := svc.List()
	if len(files) != 1 || files[0].Path != res.Path {
		t.Errorf("files = %+v, expected just the new backup", files)
	}
	if n := countRows(t, db, &models.SchedulerLock{}); n != 0 {
		t.Errorf("scheduler locks = %d, expected released", n)
	}

	// Another instance holding the lock makes RunOnce a no-op.
	AcquireLock(context.Background(), db, schedulerJob, schedulerScope, "other", time.Hour)
	res, err = sched.RunOnce(context.Background())
	if err != nil || res != nil {
		t.Errorf("RunOnce() while locked = %+v, %v", res, err)
	}
}
