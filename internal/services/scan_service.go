package services

import (
	"context"
	"fmt"
	"log"

	"github.com/gingerloyalty/backend/internal/audit"
	"github.com/gingerloyalty/backend/internal/config"
	"github.com/gingerloyalty/backend/internal/models"
)

// ScanService is the redemption executor: it drives a scan event from decoded
// token through cooldown and eligibility to either a point credit or a reward
// offer, and handles the separate confirm-redemption action.
type ScanService struct {
	points  *PointsService
	rewards *RewardService
	qr      *QRService
	audit   *audit.Logger
	config  *config.LoyaltyConfig
}

func NewScanService(points *PointsService, rewards *RewardService, qr *QRService, cfg *config.LoyaltyConfig) *ScanService {
	return &ScanService{
		points:  points,
		rewards: rewards,
		qr:      qr,
		audit:   audit.NewLogger(),
		config:  cfg,
	}
}

// ScanResult reports the terminal state of one scan event.
type ScanResult struct {
	UserID          int             `json:"user_id"`
	UserName        string          `json:"user_name"`
	CurrentPoints   int             `json:"current_points"`
	RewardEligible  bool            `json:"reward_eligible"`
	MultipleRewards bool            `json:"multiple_rewards,omitempty"`
	Reward          *models.Reward  `json:"reward,omitempty"`
	AvailableReward []models.Reward `json:"available_rewards,omitempty"`
	NewTotal        int             `json:"new_total,omitempty"`
	Message         string          `json:"message"`
}

// RedeemResult reports a confirmed redemption.
type RedeemResult struct {
	Reward   *models.Reward `json:"reward"`
	NewTotal int            `json:"new_total"`
	Message  string         `json:"message"`
}

// Scan processes one staff scan of a customer token. Offering a reward never
// mutates the balance; only the no-reward branch credits points.
func (s *ScanService) Scan(ctx context.Context, qrData string, staffUserID int) (*ScanResult, error) {
	customer, err := s.qr.ResolveToken(ctx, qrData)
	if err != nil {
		return nil, err
	}

	ref := s.audit.NewReference()

	canScan, err := s.points.CanScan(ctx, customer.UserID, staffUserID)
	if err != nil {
		s.audit.LogError(ref, customer.UserID, err)
		return nil, err
	}
	if !canScan {
		s.audit.LogBlocked(ref, customer.UserID, staffUserID, "cooldown")
		return nil, fmt.Errorf("scanned within the last %s: %w", s.config.ScanCooldown, ErrCooldown)
	}

	balance, err := s.points.GetOrCreateBalance(ctx, customer.UserID)
	if err != nil {
		s.audit.LogError(ref, customer.UserID, err)
		return nil, err
	}

	available, err := s.rewards.AvailableRewards(ctx, balance.CurrentPoints)
	if err != nil {
		s.audit.LogError(ref, customer.UserID, err)
		return nil, err
	}

	if len(available) > 0 {
		log.Printf("[SCAN] User %d eligible for %d reward(s), offering without credit", customer.UserID, len(available))
		result := &ScanResult{
			UserID:         customer.UserID,
			UserName:       customer.UserName,
			CurrentPoints:  balance.CurrentPoints,
			RewardEligible: true,
		}
		if len(available) == 1 {
			reward := available[0]
			result.Reward = &reward
			result.Message = fmt.Sprintf("%s has %d points and is eligible for %s!",
				customer.UserName, balance.CurrentPoints, reward.Name)
		} else {
			result.MultipleRewards = true
			result.AvailableReward = available
			result.Message = fmt.Sprintf("%s has %d points and can choose from %d rewards!",
				customer.UserName, balance.CurrentPoints, len(available))
		}
		return result, nil
	}

	newTotal, err := s.points.ApplyDelta(ctx, customer.UserID, &staffUserID, s.config.ScanCreditPoints, "QR code scan")
	if err != nil {
		s.audit.LogError(ref, customer.UserID, err)
		return nil, err
	}
	s.audit.LogCredit(ref, customer.UserID, staffUserID, s.config.ScanCreditPoints, newTotal)

	log.Printf("[SCAN] Credited %d point(s) to user %d, new total: %d",
		s.config.ScanCreditPoints, customer.UserID, newTotal)

	return &ScanResult{
		UserID:        customer.UserID,
		UserName:      customer.UserName,
		CurrentPoints: balance.CurrentPoints,
		NewTotal:      newTotal,
		Message:       fmt.Sprintf("Added %d point to %s", s.config.ScanCreditPoints, customer.UserName),
	}, nil
}

// CanScan exposes the cooldown pre-check for token data.
func (s *ScanService) CanScan(ctx context.Context, qrData string, staffUserID int) (bool, error) {
	customer, err := s.qr.ResolveToken(ctx, qrData)
	if err != nil {
		return false, err
	}
	return s.points.CanScan(ctx, customer.UserID, staffUserID)
}

// RedeemBest confirms redemption of the cheapest affordable reward.
func (s *ScanService) RedeemBest(ctx context.Context, userID, staffUserID int) (*RedeemResult, error) {
	balance, err := s.points.GetOrCreateBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	reward, err := s.rewards.SingleBestReward(ctx, balance.CurrentPoints)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, fmt.Errorf("no reward within %d points: %w", balance.CurrentPoints, ErrConflict)
	}

	return s.redeem(ctx, userID, staffUserID, reward)
}

// RedeemSpecific confirms redemption of one chosen reward. The balance is
// re-verified here and again under the row lock inside ApplyDelta, so a
// concurrent redemption between offer and confirm surfaces as ErrConflict
// rather than a negative balance.
func (s *ScanService) RedeemSpecific(ctx context.Context, userID, staffUserID, rewardID int) (*RedeemResult, error) {
	reward, err := s.rewards.GetActiveReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}

	balance, err := s.points.GetOrCreateBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	if balance.CurrentPoints < reward.PointsRequired {
		return nil, fmt.Errorf("%s needs %d points, balance is %d: %w",
			reward.Name, reward.PointsRequired, balance.CurrentPoints, ErrConflict)
	}

	return s.redeem(ctx, userID, staffUserID, reward)
}

func (s *ScanService) redeem(ctx context.Context, userID, staffUserID int, reward *models.Reward) (*RedeemResult, error) {
	ref := s.audit.NewReference()

	newTotal, err := s.points.ApplyDelta(ctx, userID, &staffUserID,
		-reward.PointsRequired, fmt.Sprintf("%s reward redeemed", reward.Name))
	if err != nil {
		s.audit.LogError(ref, userID, err)
		return nil, err
	}
	s.audit.LogDebit(ref, userID, staffUserID, reward.PointsRequired, newTotal, reward.Name)

	log.Printf("[SCAN] Redeemed %s for user %d, new total: %d", reward.Name, userID, newTotal)

	return &RedeemResult{
		Reward:   reward,
		NewTotal: newTotal,
		Message:  fmt.Sprintf("%s reward redeemed successfully!", reward.Name),
	}, nil
}
