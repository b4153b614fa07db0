package shield

import (
	"regexp"

	"github.com/meerkat-ai/gateway/internal/core"
)

// pattern is one weighted detection rule inside a category.
type pattern struct {
	re     *regexp.Regexp
	label  string
	weight float64
}

// category groups the patterns for one attack type with its default
// severity, default verdict, and the weighted-sum threshold above which
// the severity is elevated one rank.
type category struct {
	attackType core.AttackType
	severity   core.Severity
	action     core.SuggestedAction
	threshold  float64
	patterns   []pattern
}

func rx(expr string) *regexp.Regexp { return regexp.MustCompile(`(?i)` + expr) }

// Categories listed in section-scan priority order. Patterns are matched
// case-insensitively against raw section text.
var categories = []category{
	{
		attackType: core.AttackDirectInjection,
		severity:   core.SeverityCritical,
		action:     core.ActionProceedSanitized,
		threshold:  2.5,
		patterns: []pattern{
			{rx(`ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|directions)`), "instruction_override", 2.0},
			{rx(`forget\s+(all\s+)?(your\s+)?(instructions|training|rules)`), "instruction_reset", 2.0},
			{rx(`disregard\s+(all\s+)?(previous|prior|above|your)`), "instruction_disregard", 1.5},
			{rx(`override\s+(your\s+)?(instructions|settings|configuration|safety)`), "instruction_override_verb", 1.5},
			{rx(`new\s+instructions?\s*:`), "new_instructions_marker", 1.5},
			{rx(`you\s+are\s+now\s+`), "role_reassignment", 0.75},
			{rx(`pretend\s+(you\s+are|to\s+be)\s+`), "role_play_coercion", 0.75},
		},
	},
	{
		attackType: core.AttackDataExfiltration,
		severity:   core.SeverityCritical,
		action:     core.ActionQuarantine,
		threshold:  2.0,
		patterns: []pattern{
			{rx(`(send|forward|email|post|upload|transmit|exfiltrate)\s+[^.\n]{0,60}(api[\s_-]?key|password|token|secret|credential)`), "exfiltrate_credentials", 2.5},
			{rx(`(send|forward|email|post|upload)\s+[^.\n]{0,60}(conversation|chat\s+history|this\s+message|these\s+messages)`), "exfiltrate_conversation", 1.5},
			{rx(`(show|reveal|display|print|output|repeat)\s+(me\s+)?(your\s+)?(system\s+)?(prompt|instructions)`), "prompt_extraction", 1.5},
		},
	},
	{
		attackType: core.AttackToolManipulation,
		severity:   core.SeverityHigh,
		action:     core.ActionQuarantine,
		threshold:  2.0,
		patterns: []pattern{
			{rx(`curl\s+[^\n|]{0,120}\|\s*(ba)?sh`), "pipe_to_shell", 2.5},
			{rx(`wget\s+[^\n|]{0,120}\|\s*(ba)?sh`), "pipe_to_shell_wget", 2.5},
			{rx(`rm\s+-rf\s+[/~]`), "destructive_shell", 2.5},
			{rx(`(run|execute|invoke)\s+(the\s+)?(shell|bash|terminal|command)\s`), "tool_invocation_coercion", 0.75},
			{rx(`use\s+the\s+\w+\s+tool\s+to\s+(delete|send|upload|transfer)`), "tool_abuse_directive", 1.5},
		},
	},
	{
		attackType: core.AttackCredentialHarvesting,
		severity:   core.SeverityCritical,
		action:     core.ActionQuarantine,
		threshold:  2.0,
		patterns: []pattern{
			{rx(`(read|cat|open|print|show)\s+[^\n]{0,40}\.(env|ssh|aws|npmrc|netrc)\b`), "dotfile_read", 2.5},
			{rx(`\.ssh/(id_rsa|id_ed25519|authorized_keys)`), "ssh_key_access", 2.5},
			{rx(`(what|tell\s+me)\s+(is|are)\s+(the|your)\s+(password|api[\s_-]?key|secret)`), "credential_question", 1.5},
			{rx(`environment\s+variables?\s+(containing|with)\s+(secret|key|token|password)`), "env_secret_probe", 1.5},
		},
	},
	{
		attackType: core.AttackPrivilegeEscalation,
		severity:   core.SeverityHigh,
		action:     core.ActionProceedSanitized,
		threshold:  2.0,
		patterns: []pattern{
			{rx(`^\s*(\[)?(admin|system|developer|root)(\])?\s*:`), "role_prefix", 2.0},
			{rx(`(as|i\s+am)\s+(an?\s+)?(admin|administrator|developer|superuser|root\s+user)`), "claimed_privilege", 1.5},
			{rx(`(grant|give|enable)\s+(me\s+)?(admin|root|elevated|full)\s+(access|privileges|permissions)`), "privilege_request", 1.5},
			{rx(`sudo\s+`), "sudo_prefix", 0.5},
		},
	},
	{
		attackType: core.AttackSocialEngineering,
		severity:   core.SeverityMedium,
		action:     core.ActionHumanReview,
		threshold:  2.0,
		patterns: []pattern{
			{rx(`(anthropic|openai|google|your\s+vendor)\s+(has\s+)?(authorized|approved|instructed)`), "vendor_impersonation", 2.0},
			{rx(`(silently|secretly|quietly|without\s+telling)`), "stealth_directive", 0.75},
			{rx(`do\s+not\s+(tell|inform|notify|alert)\s+(the\s+)?user`), "user_concealment", 2.0},
			{rx(`this\s+is\s+(urgent|an\s+emergency|a\s+test\s+authorized\s+by)`), "urgency_pressure", 0.75},
			{rx(`(your\s+(creator|developer)s?|the\s+company)\s+(want|need|told)s?\s+you\s+to`), "authority_appeal", 1.5},
		},
	},
	{
		attackType: core.AttackJailbreak,
		severity:   core.SeverityHigh,
		action:     core.ActionQuarantine,
		threshold:  2.0,
		patterns: []pattern{
			{rx(`\bDAN\b`), "dan_persona", 1.5},
			{rx(`do\s+anything\s+now`), "dan_phrase", 2.0},
			{rx(`developer\s+mode`), "developer_mode", 2.0},
			{rx(`(no|without)\s+(restrictions|limitations|filters|guardrails)`), "restriction_removal", 1.5},
			{rx(`(hypothetically|in\s+a\s+fictional\s+world)[^.\n]{0,60}(illegal|harmful|dangerous)`), "fiction_framing", 0.75},
			{rx(`jailbreak`), "jailbreak_literal", 1.5},
		},
	},
	{
		attackType: core.AttackIndirectInjection,
		severity:   core.SeverityCritical,
		action:     core.ActionQuarantine,
		threshold:  2.0,
		patterns: []pattern{
			{rx(`(when|after|next\s+time)\s+the\s+user\s+(asks|says|types)[^.\n]{0,80}(instead|actually|really)`), "conditional_injection", 2.0},
			{rx(`from\s+now\s+on,?\s+(always|never|you\s+(will|must))`), "persistent_directive", 1.5},
			{rx(`(later|in\s+your\s+next\s+(response|reply)),?\s+(include|insert|add)`), "time_shifted_payload", 1.5},
			{rx(`if\s+anyone\s+asks,?\s+(say|tell|deny)`), "deception_directive", 1.5},
		},
	},
}

// sectionCategories returns the categories scanned per section at the
// given sensitivity, in priority order. Social engineering and jailbreak
// need medium or above.
func sectionCategories(sens core.Sensitivity) []category {
	out := make([]category, 0, len(categories))
	for _, c := range categories {
		switch c.attackType {
		case core.AttackSocialEngineering, core.AttackJailbreak:
			if sens == core.SensitivityLow {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// alwaysQuarantine holds the attack types that force full-message
// quarantine regardless of section mix.
var alwaysQuarantine = map[core.AttackType]bool{
	core.AttackIndirectInjection:    true,
	core.AttackJailbreak:            true,
	core.AttackDataExfiltration:     true,
	core.AttackCredentialHarvesting: true,
	core.AttackToolManipulation:     true,
	core.AttackEncoding:             true,
}
