package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/domain"
)

type stubStore struct {
	appendErr  error
	outcomeErr error
	appended   []Entry
	outcomes   map[string]domain.Outcome
}

func newStubStore() *stubStore {
	return &stubStore{outcomes: make(map[string]domain.Outcome)}
}

func (s *stubStore) Append(_ context.Context, entry Entry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, entry)
	return nil
}

func (s *stubStore) SetOutcome(_ context.Context, requestID string, outcome domain.Outcome, _ int64) error {
	if s.outcomeErr != nil {
		return s.outcomeErr
	}
	s.outcomes[requestID] = outcome
	return nil
}

func (s *stubStore) ListByResource(context.Context, string, int) ([]Entry, error) {
	return nil, nil
}

func (s *stubStore) HighRiskCount(context.Context, string, time.Duration) (int, error) {
	return 0, nil
}

func (s *stubStore) DenialRatio(context.Context, time.Duration) (float64, error) {
	return 0, nil
}

type RecorderSuite struct {
	suite.Suite
	ctx   context.Context
	store *stubStore
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newStubStore()
}

func (s *RecorderSuite) TestNewRecorder() {
	_, err := NewRecorder(nil)
	s.Error(err)
}

func (s *RecorderSuite) TestRecord() {
	s.Run("fills timestamp and risk name", func() {
		recorder, err := NewRecorder(s.store)
		s.Require().NoError(err)

		err = recorder.Record(s.ctx, Entry{
			Request: domain.ActionRequest{ID: "r1", Target: "pg-mcp"},
			Risk:    domain.RiskHigh,
			Path:    domain.PathApproved,
		})
		s.Require().NoError(err)
		s.Require().Len(s.store.appended, 1)
		s.False(s.store.appended[0].Timestamp.IsZero())
		s.Equal("high", s.store.appended[0].RiskName)
	})

	s.Run("append failure surfaces as storage unavailable", func() {
		s.store.appendErr = errors.New("connection refused")
		recorder, err := NewRecorder(s.store)
		s.Require().NoError(err)

		err = recorder.Record(s.ctx, Entry{Request: domain.ActionRequest{ID: "r2"}})
		s.ErrorIs(err, domain.ErrStorageUnavailable)
	})
}

func (s *RecorderSuite) TestFeed() {
	s.Run("entries fan out to the feed", func() {
		feed := make(chan Entry, 1)
		recorder, err := NewRecorder(s.store, WithFeed(feed))
		s.Require().NoError(err)

		err = recorder.Record(s.ctx, Entry{Request: domain.ActionRequest{ID: "r1"}})
		s.Require().NoError(err)

		select {
		case entry := <-feed:
			s.Equal("r1", entry.Request.ID)
		default:
			s.Fail("expected entry on feed")
		}
	})

	s.Run("full feed drops instead of blocking", func() {
		feed := make(chan Entry) // no capacity, nobody draining
		recorder, err := NewRecorder(s.store, WithFeed(feed))
		s.Require().NoError(err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			s.NoError(recorder.Record(s.ctx, Entry{Request: domain.ActionRequest{ID: "r2"}}))
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			s.Fail("record blocked on a full feed")
		}
	})
}

func (s *RecorderSuite) TestRecordOutcome() {
	recorder, err := NewRecorder(s.store)
	s.Require().NoError(err)

	recorder.RecordOutcome(s.ctx, "r1", domain.OutcomeSuccess, 12)
	s.Equal(domain.OutcomeSuccess, s.store.outcomes["r1"])

	s.Run("store failure is swallowed", func() {
		s.store.outcomeErr = errors.New("down")
		recorder.RecordOutcome(s.ctx, "r2", domain.OutcomeFailure, 1)
	})
}
