package search

import (
	"context"

	"go.uber.org/zap"

	"memchat/api/internal/logging"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili    *Meili
	fallback Searcher
	logger   *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Searcher, logger *zap.Logger) *Service {
	return &Service{meili: meili, fallback: fallback, logger: logging.OrNop(logger)}
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch failed, falling back to postgres", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("postgres search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDocument indexes a document (fire-and-forget to Meilisearch).
func (s *Service) IndexDocument(doc DocumentRecord) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.IndexDocuments([]DocumentRecord{doc}); err != nil {
			s.logger.Warn("index document failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}()
}

// IndexChat indexes a chat (fire-and-forget to Meilisearch).
func (s *Service) IndexChat(chat ChatRecord) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.IndexChats([]ChatRecord{chat}); err != nil {
			s.logger.Warn("index chat failed", zap.String("chat_id", chat.ID), zap.Error(err))
		}
	}()
}

// RecordLoader supplies every searchable record for a full reindex.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]DocumentRecord, []ChatRecord, error)
}

// Reindex pushes every record from loader into Meilisearch.
func (s *Service) Reindex(ctx context.Context, loader RecordLoader) {
	if !s.meiliReady() || loader == nil {
		return
	}
	documents, chats, err := loader.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexDocuments(documents); err != nil {
		s.logger.Warn("reindex documents failed", zap.Error(err))
	}
	if err := s.meili.IndexChats(chats); err != nil {
		s.logger.Warn("reindex chats failed", zap.Error(err))
	}
	s.logger.Info("search reindexed", zap.Int("documents", len(documents)), zap.Int("chats", len(chats)))
}

// Healthy reports whether any backend can serve queries.
func (s *Service) Healthy() bool {
	return s.meiliReady() || (s.fallback != nil && s.fallback.Healthy())
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
