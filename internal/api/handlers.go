package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
	"github.com/PhantomL4rd/mirapuri-stats/internal/pkg/metrics"
)

const (
	// maxRowsPerRequest 单次请求的行数上限。
	maxRowsPerRequest = 5000
	maxItemIDLen      = 32
	maxRank           = 10
)

// handleItems POST /items
func (s *Server) handleItems(c *gin.Context) {
	var req model.ItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := checkRowCount(len(req.Items)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items := make([]model.ItemRecord, 0, len(req.Items))
	for i, it := range req.Items {
		if err := validateItem(it); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("items[%d]: %v", i, err)})
			return
		}
		items = append(items, model.ItemRecord{ItemID: it.ItemID, Name: strings.TrimSpace(it.Name), SlotID: it.SlotID})
	}

	inserted, err := s.store.UpsertItems(c.Request.Context(), items)
	if err != nil {
		s.respondStoreError(c, "upsert_items", err)
		return
	}
	metrics.APIRowsWritten.WithLabelValues("items").Add(float64(inserted))
	c.JSON(http.StatusOK, model.WriteResult{Inserted: inserted, Skipped: int64(len(items)) - inserted})
}

// handleUsage POST /usage?version=
func (s *Server) handleUsage(c *gin.Context) {
	version := c.Query("version")
	var req model.UsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := checkRowCount(len(req.Usage)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows := make([]model.UsageRecord, 0, len(req.Usage))
	for i, u := range req.Usage {
		if err := validateUsage(u); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("usage[%d]: %v", i, err)})
			return
		}
		rows = append(rows, model.UsageRecord{SlotID: u.SlotID, ItemID: u.ItemID, Count: u.Count})
	}

	inserted, err := s.store.InsertUsage(c.Request.Context(), version, rows)
	if err != nil {
		s.respondStoreError(c, "insert_usage", err)
		return
	}
	metrics.APIRowsWritten.WithLabelValues("usage").Add(float64(inserted))
	c.JSON(http.StatusOK, model.WriteResult{Inserted: inserted, Skipped: int64(len(rows)) - inserted})
}

// handlePairs POST /pairs?version=
func (s *Server) handlePairs(c *gin.Context) {
	version := c.Query("version")
	var req model.PairsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := checkRowCount(len(req.Pairs)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows := make([]model.PairRecord, 0, len(req.Pairs))
	for i, p := range req.Pairs {
		if err := validatePair(p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("pairs[%d]: %v", i, err)})
			return
		}
		rows = append(rows, model.PairRecord{
			BaseSlotID:    p.BaseSlotID,
			PartnerSlotID: p.PartnerSlotID,
			BaseItemID:    p.BaseItemID,
			PartnerItemID: p.PartnerItemID,
			Count:         p.Count,
			Rank:          p.Rank,
		})
	}

	inserted, err := s.store.InsertPairs(c.Request.Context(), version, rows)
	if err != nil {
		s.respondStoreError(c, "insert_pairs", err)
		return
	}
	metrics.APIRowsWritten.WithLabelValues("pairs").Add(float64(inserted))
	c.JSON(http.StatusOK, model.WriteResult{Inserted: inserted, Skipped: int64(len(rows)) - inserted})
}

// handleSyncStart POST /sync/start
func (s *Server) handleSyncStart(c *gin.Context) {
	version, err := s.store.StartSync(c.Request.Context())
	if err != nil {
		s.respondStoreError(c, "start_sync", err)
		return
	}
	s.logger.Info("sync started", slog.String("version", version), slog.String("subject", getSubject(c)))
	c.JSON(http.StatusOK, model.SyncStartResponse{Version: version})
}

// handleSyncCommit POST /sync/commit
//
// 提交成功后清理超出保留数量的旧版本，清理失败不影响提交结果。
func (s *Server) handleSyncCommit(c *gin.Context) {
	var req model.SyncCommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.DataFrom != nil && req.DataTo != nil && req.DataTo.Before(*req.DataFrom) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data_to is before data_from"})
		return
	}

	ctx := c.Request.Context()
	res, err := s.store.CommitSync(ctx, req.Version, req.DataFrom, req.DataTo)
	if err != nil {
		s.respondStoreError(c, "commit_sync", err)
		return
	}

	resp := model.SyncCommitResponse{PreviousVersion: res.PreviousVersion, NewVersion: res.NewVersion}
	removed, err := s.store.CleanupOldVersions(ctx, s.cfg.Publish.KeepVersions)
	if err != nil {
		s.logger.Warn("cleanup old versions failed", slog.String("error", err.Error()))
	} else {
		resp.RemovedVersions = removed
	}

	s.logger.Info("sync committed",
		slog.String("version", res.NewVersion),
		slog.String("previous_version", res.PreviousVersion),
		slog.Int("removed_versions", len(removed)),
		slog.String("subject", getSubject(c)))
	c.JSON(http.StatusOK, resp)
}

// handleSyncAbort POST /sync/abort
func (s *Server) handleSyncAbort(c *gin.Context) {
	var req model.SyncAbortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := s.store.AbortSync(c.Request.Context(), req.Version); err != nil {
		s.respondStoreError(c, "abort_sync", err)
		return
	}
	s.logger.Warn("sync aborted", slog.String("version", req.Version), slog.String("subject", getSubject(c)))
	c.JSON(http.StatusOK, gin.H{"aborted": req.Version})
}

// handleActiveVersion GET /sync/active
func (s *Server) handleActiveVersion(c *gin.Context) {
	ctx := c.Request.Context()
	version, err := s.store.GetActiveVersion(ctx)
	if err != nil {
		s.respondStoreError(c, "active_version", err)
		return
	}
	resp := model.ActiveVersionResponse{Version: version}
	if version != model.NoVersion {
		metas, err := s.store.ListVersions(ctx)
		if err != nil {
			s.respondStoreError(c, "list_versions", err)
			return
		}
		for _, m := range metas {
			if m.Version == version {
				syncedAt := m.SyncedAt
				resp.DataFrom, resp.DataTo, resp.SyncedAt = m.DataFrom, m.DataTo, &syncedAt
				break
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetPairs GET /pairs?base_slot=&base_item=
//
// 始终读取当前激活版本，读者不会看到未提交或半写入的数据。
func (s *Server) handleGetPairs(c *gin.Context) {
	slot, err := strconv.Atoi(c.Query("base_slot"))
	if err != nil || !model.ValidSlot(slot) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid base_slot"})
		return
	}
	item := strings.TrimSpace(c.Query("base_item"))
	if item == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "base_item is required"})
		return
	}

	ctx := c.Request.Context()
	version, err := s.store.GetActiveVersion(ctx)
	if err != nil {
		s.respondStoreError(c, "active_version", err)
		return
	}
	pairs := []model.PairPayload{}
	if version != model.NoVersion {
		rows, err := s.store.PairsFor(ctx, version, slot, item)
		if err != nil {
			s.respondStoreError(c, "pairs_for", err)
			return
		}
		pairs = model.ToPairPayloads(rows)
	}
	c.JSON(http.StatusOK, gin.H{"version": version, "pairs": pairs})
}

func checkRowCount(n int) error {
	if n > maxRowsPerRequest {
		return fmt.Errorf("too many rows: %d > %d", n, maxRowsPerRequest)
	}
	return nil
}

func validateItemID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(id) > maxItemIDLen {
		return fmt.Errorf("%s is too long", field)
	}
	return nil
}

func validateSlot(field string, slot int) error {
	if !model.ValidSlot(slot) {
		return fmt.Errorf("%s %d out of range", field, slot)
	}
	return nil
}

func validateItem(it model.ItemPayload) error {
	if err := validateItemID("item_id", it.ItemID); err != nil {
		return err
	}
	if strings.TrimSpace(it.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return validateSlot("slot_id", it.SlotID)
}

func validateUsage(u model.UsagePayload) error {
	if err := validateSlot("slot_id", u.SlotID); err != nil {
		return err
	}
	if err := validateItemID("item_id", u.ItemID); err != nil {
		return err
	}
	if u.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}
	return nil
}

func validatePair(p model.PairPayload) error {
	if err := validateSlot("base_slot_id", p.BaseSlotID); err != nil {
		return err
	}
	if err := validateSlot("partner_slot_id", p.PartnerSlotID); err != nil {
		return err
	}
	if p.BaseSlotID == p.PartnerSlotID {
		return fmt.Errorf("base and partner slot must differ")
	}
	if err := validateItemID("base_item_id", p.BaseItemID); err != nil {
		return err
	}
	if err := validateItemID("partner_item_id", p.PartnerItemID); err != nil {
		return err
	}
	if p.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}
	if p.Rank < 1 || p.Rank > maxRank {
		return fmt.Errorf("rank %d out of range", p.Rank)
	}
	return nil
}
