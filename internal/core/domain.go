// Package core holds the domain types shared by the shield, verify,
// session and policy subsystems. Everything here is plain data; the
// behavior lives in the packages that consume these types.
package core

import "time"

// ============================================================================
// ENUMS
// ============================================================================

// Plan is a tenant subscription tier.
type Plan string

const (
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// Domain is the industry vertical a verification runs under. It selects
// tolerance rules and remediation overrides.
type Domain string

const (
	DomainLegal      Domain = "legal"
	DomainFinancial  Domain = "financial"
	DomainHealthcare Domain = "healthcare"
	DomainGeneral    Domain = "general"
)

// ValidDomain reports whether s names a supported domain.
func ValidDomain(s string) bool {
	switch Domain(s) {
	case DomainLegal, DomainFinancial, DomainHealthcare, DomainGeneral:
		return true
	}
	return false
}

// CheckName identifies a single governance check.
type CheckName string

const (
	CheckEntailment      CheckName = "entailment"
	CheckSemanticEntropy CheckName = "semantic_entropy"
	CheckPreference      CheckName = "implicit_preference"
	CheckClaims          CheckName = "claim_extraction"
	CheckNumerical       CheckName = "numerical_verify"
)

// SupportedChecks is the full check set, in fusion-weight order.
var SupportedChecks = []CheckName{
	CheckEntailment,
	CheckNumerical,
	CheckSemanticEntropy,
	CheckPreference,
	CheckClaims,
}

// ValidCheck reports whether s names a supported check.
func ValidCheck(s string) bool {
	for _, c := range SupportedChecks {
		if CheckName(s) == c {
			return true
		}
	}
	return false
}

// Status is the governance decision for a verification.
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFlag  Status = "FLAG"
	StatusBlock Status = "BLOCK"
)

// ThreatLevel grades shield findings.
type ThreatLevel string

const (
	ThreatNone     ThreatLevel = "NONE"
	ThreatLow      ThreatLevel = "LOW"
	ThreatMedium   ThreatLevel = "MEDIUM"
	ThreatHigh     ThreatLevel = "HIGH"
	ThreatCritical ThreatLevel = "CRITICAL"
)

// Severity orders threat and correction gravity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityRank maps a severity to a comparable integer (higher = worse).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// ThreatLevelFor maps a severity to the exposed threat level.
func ThreatLevelFor(s Severity) ThreatLevel {
	switch s {
	case SeverityCritical:
		return ThreatCritical
	case SeverityHigh:
		return ThreatHigh
	case SeverityMedium:
		return ThreatMedium
	case SeverityLow:
		return ThreatLow
	}
	return ThreatNone
}

// AttackType is the shield threat taxonomy.
type AttackType string

const (
	AttackDirectInjection      AttackType = "direct_injection"
	AttackIndirectInjection    AttackType = "indirect_injection"
	AttackJailbreak            AttackType = "jailbreak"
	AttackDataExfiltration     AttackType = "data_exfiltration"
	AttackCredentialHarvesting AttackType = "credential_harvesting"
	AttackPrivilegeEscalation  AttackType = "privilege_escalation"
	AttackSocialEngineering    AttackType = "social_engineering"
	AttackToolManipulation     AttackType = "tool_manipulation"
	AttackEncoding             AttackType = "encoding_attack"
)

// SuggestedAction is the agent-executable verdict attached to shield
// results and verify remediations.
type SuggestedAction string

const (
	ActionAllow               SuggestedAction = "ALLOW"
	ActionProceedSanitized    SuggestedAction = "PROCEED_WITH_SANITIZED"
	ActionQuarantine          SuggestedAction = "QUARANTINE_FULL_MESSAGE"
	ActionHumanReview         SuggestedAction = "REQUEST_HUMAN_REVIEW"
	ActionRetryWithCorrection SuggestedAction = "RETRY_WITH_CORRECTION"
	ActionProceedWithWarning  SuggestedAction = "PROCEED_WITH_WARNING"
	ActionAbort               SuggestedAction = "ABORT_ACTION"
)

// SectionAction records what the shield did to a single finding.
type SectionAction string

const (
	SectionRemoved     SectionAction = "REMOVED"
	SectionQuarantined SectionAction = "QUARANTINED"
	SectionFlagged     SectionAction = "FLAGGED"
)

// SessionType tracks which subsystems a retry session has passed through.
type SessionType string

const (
	SessionShield       SessionType = "shield"
	SessionVerify       SessionType = "verify"
	SessionFullPipeline SessionType = "full_pipeline"
)

// VerificationMode names the evidence source a verify call used.
type VerificationMode string

const (
	ModeGrounded        VerificationMode = "grounded"
	ModeKnowledgeBase   VerificationMode = "knowledge_base"
	ModeSelfConsistency VerificationMode = "self_consistency"
)

// Sensitivity is the shield scan aggressiveness.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// ============================================================================
// TENANCY
// ============================================================================

// Tenant is an onboarded organization.
type Tenant struct {
	ID                string    `json:"tenant_id"`
	Name              string    `json:"name"`
	Plan              Plan      `json:"plan"`
	Domain            Domain    `json:"domain"`
	VerificationsUsed int64     `json:"verifications_used"` // current billing period
	CreatedAt         time.Time `json:"created_at"`
}

// Credential is an API key record. The secret itself is never stored;
// only the SHA-256 hash of the full key plus a display prefix.
type Credential struct {
	ID         string     `json:"credential_id"`
	TenantID   string     `json:"tenant_id"`
	Prefix     string     `json:"prefix"` // first characters, display only
	KeyHash    string     `json:"-"`      // hex SHA-256 of the full key
	Active     bool       `json:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ============================================================================
// POLICY
// ============================================================================

// Policy is a tenant's governance configuration. One default policy per
// tenant; additional named configs may be stored and selected per request
// via config_id.
type Policy struct {
	ConfigID             string            `json:"config_id"`
	TenantID             string            `json:"tenant_id"`
	Domain               Domain            `json:"domain"`
	AutoApproveThreshold int               `json:"auto_approve_threshold"` // 0-100
	AutoBlockThreshold   int               `json:"auto_block_threshold"`   // 0-100, < approve
	RequiredChecks       []CheckName       `json:"required_checks"`
	OptionalChecks       []CheckName       `json:"optional_checks"`
	KnowledgeBaseEnabled bool              `json:"knowledge_base_enabled"`
	KBTopK               int               `json:"kb_top_k"`
	KBMinRelevance       float64           `json:"kb_min_relevance"` // 0.0-1.0
	MaxRetries           int               `json:"max_retries"`
	DomainRules          map[string]string `json:"domain_rules,omitempty"`
	Alerts               map[string]string `json:"alerts,omitempty"`
	CreatedAt            time.Time         `json:"created"`
}

// DefaultPolicy returns the policy applied before a tenant configures
// anything: all checks required, thresholds 85/40, three retries.
func DefaultPolicy(tenantID string, domain Domain) *Policy {
	return &Policy{
		TenantID:             tenantID,
		Domain:               domain,
		AutoApproveThreshold: 85,
		AutoBlockThreshold:   40,
		RequiredChecks:       []CheckName{CheckEntailment, CheckSemanticEntropy},
		OptionalChecks:       []CheckName{CheckPreference, CheckClaims, CheckNumerical},
		KnowledgeBaseEnabled: false,
		KBTopK:               5,
		KBMinRelevance:       0.7,
		MaxRetries:           3,
	}
}

// ============================================================================
// CHECK RESULTS & CORRECTIONS
// ============================================================================

// CorrectionType discriminates the correction union. The remediation
// builder switches exhaustively on this.
type CorrectionType string

const (
	CorrectionSourceContradiction CorrectionType = "source_contradiction"
	CorrectionFabricatedClaim     CorrectionType = "fabricated_claim"
	CorrectionNumericalDistortion CorrectionType = "numerical_distortion"
	CorrectionBias                CorrectionType = "bias"
)

// Correction is a structured directive from a check telling the agent how
// to fix one specific defect in the output.
type Correction struct {
	Type                   CorrectionType `json:"type"`
	Check                  CheckName      `json:"check"`
	Found                  string         `json:"found,omitempty"`    // offending text as it appears in the output
	Expected               string         `json:"expected,omitempty"` // value the source supports
	Text                   string         `json:"text,omitempty"`     // claim or span the correction refers to
	Severity               Severity       `json:"severity"`
	Subtype                string         `json:"subtype,omitempty"` // numerical: "error" | "discrepancy"
	RequiresClinicalReview bool           `json:"requires_clinical_review,omitempty"`
}

// ClaimBreakdown carries the claim-extraction counts alongside the
// generic check fields.
type ClaimBreakdown struct {
	Total      int `json:"claims"`
	Verified   int `json:"verified"`
	Unverified int `json:"unverified"`
}

// CheckResult is the outcome of a single governance check.
type CheckResult struct {
	Score       float64         `json:"score"` // 0.0 worst .. 1.0 best
	Flags       []string        `json:"flags"`
	Detail      string          `json:"detail"`
	Corrections []Correction    `json:"corrections,omitempty"`
	Claims      *ClaimBreakdown `json:"claim_counts,omitempty"`
}

// Remediation bundles everything a non-PASS verdict tells the agent.
type Remediation struct {
	Message          string          `json:"message"`
	AgentInstruction string          `json:"agent_instruction"`
	Corrections      []Correction    `json:"corrections,omitempty"`
	SuggestedAction  SuggestedAction `json:"suggested_action"`
}

// ============================================================================
// SHIELD
// ============================================================================

// Threat is one structured shield finding.
type Threat struct {
	Type           AttackType    `json:"type"`
	Severity       Severity      `json:"severity"`
	Location       string        `json:"location"` // "section i of n" or "full input"
	MatchedPattern string        `json:"matched_pattern"`
	OriginalText   string        `json:"original_text"` // truncated to 200 chars
	ActionTaken    SectionAction `json:"action_taken"`
}

// ShieldVerdict is the engine's full answer for one input.
type ShieldVerdict struct {
	Safe            bool            `json:"safe"`
	ThreatLevel     ThreatLevel     `json:"threat_level"`
	Threats         []Threat        `json:"threats,omitempty"`
	SanitizedInput  *string         `json:"sanitized_input"` // nil unless PROCEED_WITH_SANITIZED
	SuggestedAction SuggestedAction `json:"suggested_action"`
	Remediation     *Remediation    `json:"remediation,omitempty"`
	Detail          string          `json:"detail"`
}

// ============================================================================
// AUDIT RECORDS
// ============================================================================

// VerificationRecord is the immutable audit row for one verify call.
type VerificationRecord struct {
	AuditID             string                    `json:"audit_id"`
	TenantID            string                    `json:"tenant_id"`
	Timestamp           time.Time                 `json:"timestamp"`
	AgentName           string                    `json:"agent_name,omitempty"`
	Model               string                    `json:"model,omitempty"`
	Domain              Domain                    `json:"domain"`
	Input               string                    `json:"input"`
	Output              string                    `json:"output"`
	Context             string                    `json:"context,omitempty"`
	TrustScore          int                       `json:"trust_score"`
	Status              Status                    `json:"status"`
	Checks              map[CheckName]CheckResult `json:"checks"`
	Flags               []string                  `json:"flags"`
	HumanReviewRequired bool                      `json:"human_review_required"`
	SessionID           string                    `json:"session_id"`
	Attempt             int                       `json:"attempt"`
	Mode                VerificationMode          `json:"verification_mode"`
	Remediation         *Remediation              `json:"remediation,omitempty"` // nil on PASS
	ReviewedBy          string                    `json:"reviewed_by,omitempty"`
	ReviewNote          string                    `json:"review_note,omitempty"`
}

// ThreatRecord is the immutable audit row for one shield call.
type ThreatRecord struct {
	AuditID        string          `json:"audit_id"`
	TenantID       string          `json:"tenant_id"`
	SessionID      string          `json:"session_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Input          string          `json:"input"` // truncated to 5000 chars
	ThreatLevel    ThreatLevel     `json:"threat_level"`
	AttackType     AttackType      `json:"attack_type,omitempty"`
	ActionTaken    string          `json:"action_taken"` // BLOCK | FLAG | SANITIZE
	Detail         string          `json:"detail"`
	SanitizedInput *string         `json:"sanitized_input"`
	Threats        []Threat        `json:"threats,omitempty"`
	Remediation    *Remediation    `json:"remediation,omitempty"`
}

// ============================================================================
// SESSIONS
// ============================================================================

// Session groups retry attempts at a single logical task.
type Session struct {
	ID            string      `json:"session_id"`
	TenantID      string      `json:"tenant_id"`
	Type          SessionType `json:"type"`
	FirstAuditID  string      `json:"first_audit_id"`
	LatestAuditID string      `json:"latest_audit_id"`
	AttemptCount  int         `json:"attempt_count"`
	InitialStatus string      `json:"initial_status"`
	FinalStatus   *string     `json:"final_status"` // nil until resolved
	Resolved      bool        `json:"resolved"`
	CreatedAt     time.Time   `json:"created_at"`
	ResolvedAt    *time.Time  `json:"resolved_at,omitempty"`
}

// ============================================================================
// KNOWLEDGE BASE
// ============================================================================

// KBChunk is one indexed slice of a tenant document. The core only reads
// these; ingestion lives outside the gateway.
type KBChunk struct {
	ID           string    `json:"chunk_id"`
	TenantID     string    `json:"tenant_id"`
	DocumentName string    `json:"document_name"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"-"` // 1536-dim unit vector
}

// KBMatch is a retrieval hit surfaced on the verify response.
type KBMatch struct {
	ChunkID        string  `json:"chunk_id"`
	DocumentName   string  `json:"document_name"`
	RelevanceScore float64 `json:"relevance_score"` // rounded to 1e-3
	ContentPreview string  `json:"content_preview"` // first 100 chars
}
