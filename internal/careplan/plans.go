package careplan

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	careplandb "github.com/nao1215/shiftcare/internal/careplan/db"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// planResponse は個別支援計画のJSONレスポンス構造。
type planResponse struct {
	ID                 string      `json:"id"`
	ServiceUserID      string      `json:"service_user_id"`
	ServiceUserName    string      `json:"service_user_name"`
	MonitoringRecordID string      `json:"monitoring_record_id,omitempty"`
	Period             Period      `json:"period"`
	Content            PlanContent `json:"content"`
	Status             string      `json:"status"`
	CreatedBy          string      `json:"created_by"`
	CreatorName        string      `json:"creator_name"`
	SubmittedAt        string      `json:"submitted_at,omitempty"`
	ApprovedBy         string      `json:"approved_by,omitempty"`
	ApprovedAt         string      `json:"approved_at,omitempty"`
	CreatedAt          string      `json:"created_at"`
	UpdatedAt          string      `json:"updated_at"`
}

func toPlanResponse(p careplandb.SupportPlan) planResponse {
	return planResponse{
		ID:                 p.ID,
		ServiceUserID:      p.ServiceUserID,
		ServiceUserName:    p.ServiceUserName,
		MonitoringRecordID: p.MonitoringRecordID,
		Period:             Period{StartDate: p.PeriodStart, EndDate: p.PeriodEnd},
		Content:            decodeContent[PlanContent](p.ID, p.Content),
		Status:             p.Status,
		CreatedBy:          p.CreatedBy,
		CreatorName:        p.CreatorName,
		SubmittedAt:        database.RFC3339(p.SubmittedAt),
		ApprovedBy:         p.ApprovedBy,
		ApprovedAt:         database.RFC3339(p.ApprovedAt),
		CreatedAt:          database.RFC3339(p.CreatedAt),
		UpdatedAt:          database.RFC3339(p.UpdatedAt),
	}
}

func (s *Server) emitPlan(c *gin.Context, p careplandb.SupportPlan, eventType event.Type) {
	s.emitter.Emit(c.Request.Context(), p.ID, event.AggregateTypeSupportPlan, eventType, event.CarePlanData{
		ID:              p.ID,
		ServiceUserID:   p.ServiceUserID,
		ServiceUserName: p.ServiceUserName,
		Status:          p.Status,
		UpdatedBy:       middleware.GetUserID(c),
	})
}

func (s *Server) loadPlan(c *gin.Context) (careplandb.SupportPlan, bool) {
	p, err := s.queries.GetSupportPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		notFound(c, err, "個別支援計画")
		return p, false
	}
	return p, true
}

// createPlan は個別支援計画を下書きとして登録し、201を返す。
func (s *Server) createPlan(c *gin.Context, p careplandb.SupportPlan, content PlanContent) {
	encoded, _ := json.Marshal(content)
	id := middleware.GetIdentity(c)
	now := database.Timestamp(s.now())
	p.ID = uuid.New().String()
	p.Content = string(encoded)
	p.Status = StatusDraft
	p.CreatedBy = id.UserID
	p.CreatorName = displayName(id)
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.queries.CreateSupportPlan(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "個別支援計画の登録に失敗しました"})
		log.Printf("個別支援計画登録エラー: %v", err)
		return
	}

	s.emitPlan(c, p, event.TypeSupportPlanSaved)
	c.JSON(http.StatusCreated, toPlanResponse(p))
}

func (s *Server) handleListPlans() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := bindList(c)
		if !ok {
			return
		}
		rows, err := s.queries.ListSupportPlans(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "個別支援計画の取得に失敗しました"})
			log.Printf("個別支援計画一覧取得エラー: %v", err)
			return
		}
		resp := make([]planResponse, 0, len(rows))
		for _, r := range rows {
			resp = append(resp, toPlanResponse(r))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// planInput は個別支援計画の登録リクエスト。
type planInput struct {
	ServiceUserID   string      `json:"service_user_id" binding:"required,max=50"`
	ServiceUserName string      `json:"service_user_name" binding:"required,max=100"`
	Period          Period      `json:"period"`
	Content         PlanContent `json:"content"`
}

func (s *Server) handleCreatePlan() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in planInput
		if !validation.BindJSON(c, &in) || !checkPeriod(c, in.Period) {
			return
		}
		s.createPlan(c, careplandb.SupportPlan{
			ServiceUserID:   in.ServiceUserID,
			ServiceUserName: in.ServiceUserName,
			PeriodStart:     in.Period.StartDate,
			PeriodEnd:       in.Period.EndDate,
		}, in.Content)
	}
}

// handleDraftPlanFromMonitoring はモニタリング記録を引き継いだ次期計画の下書きを作るハンドラ。
// 下書きのモニタリング記録からは作れない。
func (s *Server) handleDraftPlanFromMonitoring() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := s.loadMonitoring(c, c.Param("id"))
		if !ok {
			return
		}
		if record.Status == StatusDraft {
			c.JSON(http.StatusConflict, gin.H{"error": "作成完了または提出済みのモニタリング記録から作成してください"})
			return
		}
		period, content := DraftPlan(
			Period{StartDate: record.PeriodStart, EndDate: record.PeriodEnd},
			decodeContent[MonitoringContent](record.ID, record.Content),
		)
		s.createPlan(c, careplandb.SupportPlan{
			ServiceUserID:      record.ServiceUserID,
			ServiceUserName:    record.ServiceUserName,
			MonitoringRecordID: record.ID,
			PeriodStart:        period.StartDate,
			PeriodEnd:          period.EndDate,
		}, content)
	}
}

func (s *Server) handleGetPlan() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := s.loadPlan(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toPlanResponse(p))
	}
}

func (s *Server) handleUpdatePlan() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := s.loadPlan(c)
		if !ok {
			return
		}
		if !canModify(c, p.CreatedBy) {
			c.JSON(http.StatusForbidden, gin.H{"error": "作成者以外は編集できません"})
			return
		}
		var in contentUpdate[PlanContent]
		if !validation.BindJSON(c, &in) || !checkPeriod(c, in.Period) {
			return
		}

		content, _ := json.Marshal(in.Content)
		now := database.Timestamp(s.now())
		n, err := s.queries.UpdateSupportPlanContent(c.Request.Context(), p.ID, in.Period.StartDate, in.Period.EndDate, string(content), now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "個別支援計画の更新に失敗しました"})
			log.Printf("個別支援計画更新エラー: %v", err)
			return
		}
		if n == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "下書きの計画だけを編集できます"})
			return
		}

		p.PeriodStart, p.PeriodEnd, p.Content, p.UpdatedAt = in.Period.StartDate, in.Period.EndDate, string(content), now
		s.emitPlan(c, p, event.TypeSupportPlanSaved)
		c.JSON(http.StatusOK, toPlanResponse(p))
	}
}

func (s *Server) handlePlanStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := s.loadPlan(c)
		if !ok {
			return
		}
		if !canModify(c, p.CreatedBy) {
			c.JSON(http.StatusForbidden, gin.H{"error": "作成者以外は状態を変更できません"})
			return
		}
		var in statusInput
		if !validation.BindJSON(c, &in) || !checkTransition(c, p.Status, in.Status) {
			return
		}

		now := database.Timestamp(s.now())
		n, err := s.queries.SetSupportPlanStatus(c.Request.Context(), p.ID, p.Status, in.Status, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "個別支援計画の更新に失敗しました"})
			log.Printf("個別支援計画状態変更エラー: %v", err)
			return
		}
		if n == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "計画の状態が他の操作で変更されました"})
			return
		}

		p.Status, p.UpdatedAt = in.Status, now
		p.SubmittedAt = ""
		if in.Status == StatusSubmitted {
			p.SubmittedAt = now
		}
		s.emitPlan(c, p, event.TypeSupportPlanStatusChanged)
		c.JSON(http.StatusOK, toPlanResponse(p))
	}
}

// handleApprovePlan は提出済みの個別支援計画を管理者が承認するハンドラ。
func (s *Server) handleApprovePlan() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := s.loadPlan(c)
		if !ok {
			return
		}
		approver := displayName(middleware.GetIdentity(c))
		now := database.Timestamp(s.now())
		n, err := s.queries.ApproveSupportPlan(c.Request.Context(), p.ID, approver, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "個別支援計画の更新に失敗しました"})
			log.Printf("個別支援計画承認エラー: %v", err)
			return
		}
		if n == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "未承認の提出済み計画だけを承認できます"})
			return
		}

		p.ApprovedBy, p.ApprovedAt, p.UpdatedAt = approver, now, now
		s.emitPlan(c, p, event.TypeSupportPlanStatusChanged)
		c.JSON(http.StatusOK, toPlanResponse(p))
	}
}

func (s *Server) handleExportPlan() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := s.loadPlan(c)
		if !ok {
			return
		}
		data, err := PlanPDF(s.docOptions, p, decodeContent[PlanContent](p.ID, p.Content), s.now())
		writePDF(c, PlanFilename(p), data, err)
	}
}
