package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	"github.com/smallbiznis/pricedesk/internal/providers/esign"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/db/option"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultExpiryDays = 30

func (s *Service) CreateSignature(ctx context.Context, contractID string, req contractdomain.SignatureRequest) (*contractdomain.SignatureResponse, error) {
	tenantID, id, err := s.parse(ctx, contractID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, contractdomain.ErrInvalidTitle
	}
	signers, err := orderSigners(req.AccountSigners, req.CustomerSigners)
	if err != nil {
		return nil, err
	}
	days := s.defaultExpiryDays()
	if req.ExpiryDays != nil {
		if *req.ExpiryDays <= 0 {
			return nil, contractdomain.ErrInvalidExpiry
		}
		days = *req.ExpiryDays
	}

	contract, err := loadRow(ctx, s.contracts, tenantID, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if existing, err := s.currentSignature(ctx, s.signatures, tenantID, id); err != nil {
		return nil, err
	} else if existing != nil && !existing.Status.Effective(now, existing.ExpiresAt).Terminal() {
		return nil, contractdomain.ErrSignatureExists
	}

	doc, err := s.documents.QuotePDF(ctx, contract.QuoteID.String())
	if err != nil {
		return nil, err
	}

	sig := &contractdomain.ContractSignature{
		Base:        model.NewBase(ctx, s.genID.Generate(), now),
		ContractID:  contract.ID,
		Status:      contractdomain.StatusInApproval,
		Title:       title,
		Subject:     strings.TrimSpace(req.Subject),
		Message:     strings.TrimSpace(req.Message),
		ExpiresAt:   now.AddDate(0, 0, days),
		DocumentKey: doc.Key,
	}

	out := esign.CreateRequest{
		Title:     sig.Title,
		Subject:   sig.Subject,
		Message:   sig.Message,
		FileURLs:  []string{doc.URL},
		ExpiresAt: sig.ExpiresAt,
		Metadata: map[string]string{
			"tenant_id":             tenantID.String(),
			"contract_id":           contract.ID.String(),
			"contract_signature_id": sig.ID.String(),
		},
	}
	for i, signer := range signers {
		out.Signers = append(out.Signers, esign.Signer{Name: signer.Name, Email: signer.Email, Order: i})
	}
	created, err := s.esign.CreateSignatureRequest(ctx, out)
	s.metrics.RecordExternalCall(ctx, "esign", "create_signature_request", callStatus(err))
	if err != nil {
		s.log.Warn("signature request failed", zap.String("contract_id", contract.ID.String()), zap.Error(err))
		return nil, err
	}

	sig.SignatureRequestID = &created.RequestID
	sig.SigningURL = created.SigningURL
	sig.DetailsURL = created.DetailsURL
	sig.FilesURL = created.FilesURL

	details := make([]*contractdomain.ContractSignerDetails, 0, len(signers))
	audits := make([]*contractdomain.ContractSignerAudit, 0, len(signers))
	for i, signer := range signers {
		detail := &contractdomain.ContractSignerDetails{
			Base:                model.NewBase(ctx, s.genID.Generate(), now),
			ContractSignatureID: sig.ID,
			Name:                signer.Name,
			Email:               signer.Email,
			Type:                signer.Type,
			SignerOrder:         i,
			ProviderSignatureID: providerSignatureID(created.Signatures, i, signer.Email),
		}
		details = append(details, detail)
		audits = append(audits, &contractdomain.ContractSignerAudit{
			Base:                model.NewBase(ctx, s.genID.Generate(), now),
			ContractSignatureID: sig.ID,
			SignerID:            detail.ID,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadRow(ctx, s.contracts.WithTrx(db.ForUpdate(tx)), tenantID, contract.ID); err != nil {
			return err
		}
		existing, err := s.currentSignature(ctx, s.signatures.WithTrx(tx), tenantID, contract.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.Status.Effective(now, existing.ExpiresAt).Terminal() {
				return contractdomain.ErrSignatureExists
			}
			if err := s.signatures.WithTrx(tx).SoftDelete(ctx, tenantID, existing.ID, sig.CreatedBy); err != nil {
				return err
			}
		}

		if err := s.signatures.WithTrx(tx).Create(ctx, sig); err != nil {
			return err
		}
		if err := s.signers.WithTrx(tx).BatchCreate(ctx, details); err != nil {
			return err
		}

		// Callbacks can beat this commit; fold whatever arrived already.
		if err := s.repo.LinkEvents(ctx, tx, tenantID, sig.ID, created.RequestID); err != nil {
			return err
		}
		early, err := s.repo.ListSignatureEvents(ctx, tx, tenantID, sig.ID)
		if err != nil {
			return err
		}
		state := newSignerState(details, audits)
		for i := range early {
			sig.Status = state.next(sig.Status, state.apply(&early[i]))
			if err := s.repo.MarkEventProcessed(ctx, tx, early[i].ID, now); err != nil {
				return err
			}
		}
		if sig.Status != contractdomain.StatusInApproval {
			if err := s.signatures.WithTrx(tx).Update(ctx, tenantID, sig.ID, map[string]any{"status": sig.Status}); err != nil {
				return err
			}
		}

		if err := s.audits.WithTrx(tx).BatchCreate(ctx, audits); err != nil {
			return err
		}
		if err := s.contracts.WithTrx(tx).Update(ctx, tenantID, contract.ID, model.Updates(ctx, now, map[string]any{"status": sig.Status})); err != nil {
			return err
		}
		return s.audit(ctx, tx, "contract.signature.create", "contract", contract.ID, map[string]any{
			"signature_id":         sig.ID.String(),
			"signature_request_id": created.RequestID,
			"signers":              len(details),
			"expires_at":           sig.ExpiresAt,
		})
	})
	if err != nil {
		s.abandon(ctx, created.RequestID)
		return nil, err
	}

	s.log.Info("signature requested",
		zap.String("tenant_id", tenantID.String()),
		zap.String("contract_id", contract.ID.String()),
		zap.String("signature_request_id", created.RequestID),
		zap.Int("signers", len(details)),
	)
	return s.signatureResponse(ctx, tenantID, sig)
}

// abandon cancels a provider request whose local record could not be
// written.
func (s *Service) abandon(ctx context.Context, requestID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.esign.CancelSignatureRequest(ctx, requestID); err != nil {
		s.log.Error("orphaned signature request", zap.String("signature_request_id", requestID), zap.Error(err))
	}
}

func (s *Service) GetSignature(ctx context.Context, contractID string) (*contractdomain.SignatureResponse, error) {
	tenantID, sig, err := s.loadSignature(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return s.signatureResponse(ctx, tenantID, sig)
}

func (s *Service) CancelSignature(ctx context.Context, contractID string) (*contractdomain.SignatureResponse, error) {
	tenantID, sig, err := s.loadSignature(ctx, contractID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if sig.Status.Effective(now, sig.ExpiresAt).Terminal() {
		return nil, contractdomain.ErrSignatureClosed
	}

	if sig.SignatureRequestID != nil {
		err := s.esign.CancelSignatureRequest(ctx, *sig.SignatureRequestID)
		s.metrics.RecordExternalCall(ctx, "esign", "cancel_signature_request", callStatus(err))
		if err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.lockSignature(ctx, tx, tenantID, sig.ID)
		if err != nil {
			return err
		}
		if locked.Status.Terminal() {
			return contractdomain.ErrSignatureClosed
		}
		values := model.Updates(ctx, now, map[string]any{"status": contractdomain.StatusCancelled})
		if err := s.signatures.WithTrx(tx).Update(ctx, tenantID, sig.ID, values); err != nil {
			return err
		}
		if err := s.contracts.WithTrx(tx).Update(ctx, tenantID, sig.ContractID, model.Updates(ctx, now, map[string]any{"status": contractdomain.StatusCancelled})); err != nil {
			return err
		}
		return s.audit(ctx, tx, "contract.signature.cancel", "contract", sig.ContractID, map[string]any{
			"signature_id": sig.ID.String(),
			"from":         string(locked.Status),
		})
	})
	if err != nil {
		return nil, err
	}
	sig.Status = contractdomain.StatusCancelled
	return s.signatureResponse(ctx, tenantID, sig)
}

func (s *Service) RemindSigner(ctx context.Context, contractID string, req contractdomain.RemindRequest) error {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return contractdomain.ErrInvalidSigner
	}
	tenantID, sig, err := s.loadSignature(ctx, contractID)
	if err != nil {
		return err
	}
	if sig.Status.Effective(s.clock.Now(), sig.ExpiresAt).Terminal() || sig.SignatureRequestID == nil {
		return contractdomain.ErrSignatureClosed
	}

	signer, err := s.signers.FindOne(ctx, tenantID, &contractdomain.ContractSignerDetails{ContractSignatureID: sig.ID, Email: email})
	if err != nil {
		return err
	}
	if signer == nil {
		return contractdomain.ErrSignerNotFound
	}
	audit, err := s.audits.FindOne(ctx, tenantID, &contractdomain.ContractSignerAudit{SignerID: signer.ID})
	if err != nil {
		return err
	}
	if audit != nil && (audit.SignedAt != nil || audit.DeclinedAt != nil) {
		return contractdomain.ErrSignerCompleted
	}

	err = s.esign.RemindSigner(ctx, *sig.SignatureRequestID, email)
	s.metrics.RecordExternalCall(ctx, "esign", "remind_signer", callStatus(err))
	if err != nil {
		return err
	}
	return s.audit(ctx, nil, "contract.signature.remind", "contract", sig.ContractID, map[string]any{
		"signature_id": sig.ID.String(),
		"signer_id":    signer.ID.String(),
	})
}

func (s *Service) ReplaySignature(ctx context.Context, contractID string) (*contractdomain.SignatureResponse, error) {
	tenantID, sig, err := s.loadSignature(ctx, contractID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	var replayed int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.lockSignature(ctx, tx, tenantID, sig.ID)
		if err != nil {
			return err
		}
		state, err := s.loadState(ctx, tx, tenantID, locked.ID)
		if err != nil {
			return err
		}
		if locked.SignatureRequestID != nil {
			if err := s.repo.LinkEvents(ctx, tx, tenantID, locked.ID, *locked.SignatureRequestID); err != nil {
				return err
			}
		}
		events, err := s.repo.ListSignatureEvents(ctx, tx, tenantID, locked.ID)
		if err != nil {
			return err
		}

		state.reset()
		status := contractdomain.StatusInApproval
		if locked.Status == contractdomain.StatusCancelled || locked.Status == contractdomain.StatusExpired {
			status = locked.Status
		}
		for i := range events {
			status = state.next(status, state.apply(&events[i]))
			if events[i].ProcessedAt == nil {
				if err := s.repo.MarkEventProcessed(ctx, tx, events[i].ID, now); err != nil {
					return err
				}
			}
		}
		replayed = len(events)

		if err := s.saveState(ctx, tx, tenantID, state, now); err != nil {
			return err
		}
		if err := s.setStatus(ctx, tx, locked, status, now); err != nil {
			return err
		}
		sig = locked
		sig.Status = status
		return s.audit(ctx, tx, "contract.signature.replay", "contract", locked.ContractID, map[string]any{
			"signature_id": locked.ID.String(),
			"events":       replayed,
			"status":       string(status),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("signature replayed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("signature_id", sig.ID.String()),
		zap.Int("events", replayed),
		zap.String("status", string(sig.Status)),
	)
	return s.signatureResponse(ctx, tenantID, sig)
}

func (s *Service) ListEvents(ctx context.Context, contractID string) ([]contractdomain.EventResponse, error) {
	tenantID, sig, err := s.loadSignature(ctx, contractID)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListSignatureEvents(ctx, s.db, tenantID, sig.ID)
	if err != nil {
		return nil, err
	}
	out := make([]contractdomain.EventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, contractdomain.EventResponse{
			ID:                 ev.ID.String(),
			EventType:          ev.EventType,
			EventTime:          ev.EventTime,
			OccurredAt:         ev.OccurredAt,
			RelatedSignatureID: ev.RelatedSignatureID,
			StatusCode:         ev.StatusCode,
			Error:              ev.Error,
			Metadata:           ev.Metadata,
		})
	}
	return out, nil
}

func (s *Service) ExpireSignatures(ctx context.Context) (*contractdomain.ExpireResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	stale, err := s.signatures.Find(ctx, tenantID, &contractdomain.ContractSignature{},
		option.ApplyOperator(option.Condition{
			Field:    "status",
			Operator: option.IN,
			Value:    []string{string(contractdomain.StatusDraft), string(contractdomain.StatusInApproval), string(contractdomain.StatusError)},
		}),
		option.ApplyOperator(option.Condition{Field: "expires_at", Operator: option.LT, Value: now}),
	)
	if err != nil {
		return nil, err
	}

	expired := 0
	for _, candidate := range stale {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			locked, err := s.lockSignature(ctx, tx, tenantID, candidate.ID)
			if err != nil {
				return err
			}
			if locked.Status.Effective(now, locked.ExpiresAt) != contractdomain.StatusExpired || locked.Status == contractdomain.StatusExpired {
				return nil
			}
			if err := s.setStatus(ctx, tx, locked, contractdomain.StatusExpired, now); err != nil {
				return err
			}
			expired++
			return s.audit(ctx, tx, "contract.signature.expire", "contract", locked.ContractID, map[string]any{
				"signature_id": locked.ID.String(),
				"from":         string(locked.Status),
			})
		})
		if err != nil {
			return nil, err
		}
	}

	if expired > 0 {
		s.log.Info("signatures expired", zap.String("tenant_id", tenantID.String()), zap.Int("count", expired))
	}
	return &contractdomain.ExpireResponse{Expired: expired}, nil
}

func (s *Service) loadSignature(ctx context.Context, contractID string) (snowflake.ID, *contractdomain.ContractSignature, error) {
	tenantID, id, err := s.parse(ctx, contractID)
	if err != nil {
		return 0, nil, err
	}
	if _, err := loadRow(ctx, s.contracts, tenantID, id); err != nil {
		return 0, nil, err
	}
	sig, err := s.currentSignature(ctx, s.signatures, tenantID, id)
	if err != nil {
		return 0, nil, err
	}
	if sig == nil {
		return 0, nil, contractdomain.ErrSignatureNotFound
	}
	return tenantID, sig, nil
}

func (s *Service) loadState(ctx context.Context, conn *gorm.DB, tenantID, signatureID snowflake.ID) (*signerState, error) {
	signers, err := s.signers.WithTrx(conn).Find(ctx, tenantID, &contractdomain.ContractSignerDetails{ContractSignatureID: signatureID},
		option.WithSortBy(option.WithQuerySortBy("signer_order", "asc", map[string]bool{"signer_order": true})),
	)
	if err != nil {
		return nil, err
	}
	audits, err := s.audits.WithTrx(conn).Find(ctx, tenantID, &contractdomain.ContractSignerAudit{ContractSignatureID: signatureID})
	if err != nil {
		return nil, err
	}
	return newSignerState(signers, audits), nil
}

func (s *Service) saveState(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, state *signerState, now time.Time) error {
	for signerID := range state.touched {
		audit := state.audits[signerID]
		if audit == nil {
			continue
		}
		if err := s.audits.WithTrx(tx).Update(ctx, tenantID, audit.ID, model.Updates(ctx, now, auditValues(audit))); err != nil {
			return err
		}
	}
	return nil
}

// setStatus writes the signature status and mirrors it on the contract.
func (s *Service) setStatus(ctx context.Context, tx *gorm.DB, sig *contractdomain.ContractSignature, status contractdomain.SignatureStatus, now time.Time) error {
	if sig.Status == status {
		return nil
	}
	if err := s.signatures.WithTrx(tx).Update(ctx, sig.TenantID, sig.ID, model.Updates(ctx, now, map[string]any{"status": status})); err != nil {
		return err
	}
	return s.contracts.WithTrx(tx).Update(ctx, sig.TenantID, sig.ContractID, model.Updates(ctx, now, map[string]any{"status": status}))
}

func (s *Service) signatureResponse(ctx context.Context, tenantID snowflake.ID, sig *contractdomain.ContractSignature) (*contractdomain.SignatureResponse, error) {
	state, err := s.loadState(ctx, s.db, tenantID, sig.ID)
	if err != nil {
		return nil, err
	}
	resp := &contractdomain.SignatureResponse{
		ID:                 sig.ID.String(),
		ContractID:         sig.ContractID.String(),
		SignatureRequestID: sig.SignatureRequestID,
		Status:             sig.Status.Effective(s.clock.Now(), sig.ExpiresAt),
		Title:              sig.Title,
		Subject:            sig.Subject,
		Message:            sig.Message,
		ExpiresAt:          sig.ExpiresAt,
		SigningURL:         sig.SigningURL,
		DetailsURL:         sig.DetailsURL,
		FilesURL:           sig.FilesURL,
		Signers:            make([]contractdomain.SignerResponse, 0, len(state.signers)),
		CreatedAt:          sig.CreatedAt,
		UpdatedAt:          sig.UpdatedAt,
	}
	for _, signer := range state.signers {
		item := contractdomain.SignerResponse{
			ID:                  signer.ID.String(),
			Name:                signer.Name,
			Email:               signer.Email,
			Type:                signer.Type,
			SignerOrder:         signer.SignerOrder,
			ProviderSignatureID: signer.ProviderSignatureID,
		}
		if a := state.audits[signer.ID]; a != nil {
			item.LastViewedAt = a.LastViewedAt
			item.LastRemindedAt = a.LastRemindedAt
			item.SignedAt = a.SignedAt
			item.DeclinedAt = a.DeclinedAt
			item.LastStatusCode = a.LastStatusCode
			item.LastError = a.LastError
		}
		resp.Signers = append(resp.Signers, item)
	}
	return resp, nil
}

func (s *Service) defaultExpiryDays() int {
	if s.dealDesk != nil {
		if days := s.dealDesk.Get().SignatureExpiryDays; days > 0 {
			return days
		}
	}
	return defaultExpiryDays
}

type orderedSigner struct {
	Name  string
	Email string
	Type  contractdomain.SignerType
}

// orderSigners puts account signers before customer signers, keeping input
// order within each group.
func orderSigners(account, customer []contractdomain.SignerInput) ([]orderedSigner, error) {
	out := make([]orderedSigner, 0, len(account)+len(customer))
	seen := map[string]bool{}
	add := func(inputs []contractdomain.SignerInput, kind contractdomain.SignerType) error {
		for _, in := range inputs {
			name := strings.TrimSpace(in.Name)
			email := strings.ToLower(strings.TrimSpace(in.Email))
			if name == "" || email == "" || !strings.Contains(email, "@") || seen[email] {
				return contractdomain.ErrInvalidSigner
			}
			seen[email] = true
			out = append(out, orderedSigner{Name: name, Email: email, Type: kind})
		}
		return nil
	}
	if err := add(account, contractdomain.SignerAccount); err != nil {
		return nil, err
	}
	if err := add(customer, contractdomain.SignerCustomer); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, contractdomain.ErrNoSigners
	}
	return out, nil
}

func providerSignatureID(signatures []esign.Signature, order int, email string) *string {
	for _, sig := range signatures {
		if sig.Order == order && sig.SignatureID != "" {
			id := sig.SignatureID
			return &id
		}
	}
	for _, sig := range signatures {
		if strings.EqualFold(sig.Email, email) && sig.SignatureID != "" {
			id := sig.SignatureID
			return &id
		}
	}
	return nil
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
