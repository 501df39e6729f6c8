// Package user はローカルユーザーのプロビジョニングを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
	"github.com/hitoshi/authgate/internal/telemetry"
)

// Sanitizer はIdP由来のプロフィール項目を無害化する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// Service はユーザープロビジョニングのサービス層。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer Sanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// sanitizerとmetricsはnilでもよい。
func NewService(userRepo repository.UserRepository, sanitizer Sanitizer, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		metrics:   mc,
		now:       time.Now,
	}
}

// EnsureUser はexternalIDに対応するユーザーを返し、存在しなければ作成する。
// 既存ユーザーは更新しない（最初の書き込みが優先）。
// 同時作成で一意制約に衝突した場合は再取得して勝者のレコードを返すため、
// 同一externalIDに対して常に同じIDのユーザーが返る。
func (s *Service) EnsureUser(ctx context.Context, externalID, email, displayName, provider string) (*model.User, error) {
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "user.EnsureUser")
	defer span.End()

	if externalID == "" {
		err := errors.New("external id must not be empty")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	existing, err := s.userRepo.FindByExternalID(ctx, externalID)
	if err != nil {
		span.SetStatus(codes.Error, "lookup failed")
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		span.SetAttributes(attribute.Bool("user.created", false))
		return existing, nil
	}

	if provider == "" {
		provider = model.ProviderUnknown
	}
	u := model.NewUser(externalID, s.sanitize(email), s.sanitize(displayName), provider, s.now().UTC())

	err = s.userRepo.Create(ctx, u)
	switch {
	case err == nil:
		s.metrics.RecordUserProvisioned()
		span.SetAttributes(attribute.Bool("user.created", true))
		slog.Info("ユーザーを作成しました",
			slog.String("user_id", u.ID),
			slog.String("uid", externalID),
			slog.String("provider", provider),
		)
		return u, nil

	case errors.Is(err, repository.ErrDuplicateExternalID):
		s.metrics.RecordProvisionConflict()
		winner, rerr := s.userRepo.FindByExternalID(ctx, externalID)
		if rerr != nil {
			span.SetStatus(codes.Error, "re-read failed")
			return nil, fmt.Errorf("競合後のユーザー再取得に失敗しました: %w", rerr)
		}
		if winner == nil {
			span.SetStatus(codes.Error, "winner not found")
			return nil, fmt.Errorf("競合後にユーザーが見つかりません: uid=%s", externalID)
		}
		span.SetAttributes(attribute.Bool("user.created", false))
		slog.Debug("同時作成の競合を解決しました",
			slog.String("user_id", winner.ID),
			slog.String("uid", externalID),
		)
		return winner, nil

	default:
		span.SetStatus(codes.Error, "create failed")
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
}

func (s *Service) sanitize(v string) string {
	if s.sanitizer == nil {
		return v
	}
	return s.sanitizer.Sanitize(v)
}
