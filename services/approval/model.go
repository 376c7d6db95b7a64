package approval

import (
	"rewardtask-controlplane/services/setting"
	"rewardtask-controlplane/services/vip"
)

type Outcome string

const (
	AutoApprove  Outcome = "AUTO_APPROVE"
	ManualReview Outcome = "MANUAL_REVIEW"
)

type Reason string

const (
	ReasonAutoApproveAll Reason = "auto_approve_all"
	ReasonPriceThreshold Reason = "price_threshold"
	ReasonTierLimit      Reason = "tier_limit"
	ReasonManual         Reason = "manual_review"
)

type Decision struct {
	Outcome Outcome `json:"outcome"`
	Reason  Reason  `json:"reason"`
	Tier    string  `json:"tier,omitempty"`
}

// Inputs is the configuration a decision is made against, loaded fresh for
// every evaluation.
type Inputs struct {
	Config setting.ApprovalConfig
	Tiers  []*vip.Tier
}
