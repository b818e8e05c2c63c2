package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/clock/system"
	"github.com/JakeFAU/gallery-scraper/internal/config"
	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	idgen "github.com/JakeFAU/gallery-scraper/internal/id/uuid"
	"github.com/JakeFAU/gallery-scraper/internal/progress"
	"github.com/JakeFAU/gallery-scraper/internal/storage/memory"
)

type exampleDispatcher struct{}

func (exampleDispatcher) Enqueue(context.Context, gallery.QueueItem) error { return nil }
func (exampleDispatcher) Cancel(string) bool                               { return false }

func ExampleProgressHandler_ListEvents() {
	ctx := context.Background()
	jobs := memory.NewJobStore(idgen.New(), system.New())
	timeline := memory.NewTimelineStore(memory.DefaultTimelineCapacity)
	job, _ := jobs.Create(ctx, gallery.JobConfig{URL: "https://photos.example.com/gallery", ScrollDelayMs: 1500})
	_ = timeline.AppendEvents(ctx, job.ID, []progress.Event{
		{JobID: job.ID, TS: time.Now().UTC(), Stage: progress.StageJobStart},
		{JobID: job.ID, TS: time.Now().UTC(), Stage: progress.StageDiscovery, Found: 12, Target: 10},
	})

	server := NewServer(jobs, exampleDispatcher{}, system.New(), config.Config{}, zap.NewNop(), WithTimeline(timeline))
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID+"/events", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var body struct {
		Events []progress.Event `json:"events"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	fmt.Println(rec.Code)
	for _, evt := range body.Events {
		fmt.Println(evt.Stage, evt.Found)
	}
	// Output:
	// 200
	// JOB_START 0
	// DISCOVERY 12
}
