package planner

import (
	"slices"
	"time"

	"github.com/kairoai/engine/core/goal"
	"github.com/kairoai/engine/core/intent"
)

// subGoalTemplate is one step of a type-specific decomposition. Steps chain
// linearly: each depends on the previous one unless Parallel is set.
type subGoalTemplate struct {
	name         string
	description  string
	baseDuration time.Duration
	permissions  []string
	restrictions []string

	// parallel steps depend on the same predecessor as the step before them
	// instead of chaining behind it.
	parallel bool
}

// templateTable maps each capability to its decomposition steps.
var templateTable = map[intent.Capability][]subGoalTemplate{
	intent.CapabilityResearch: {
		{
			name:         "plan",
			description:  "Outline research questions and sources for: %s",
			baseDuration: 2 * time.Minute,
			permissions:  []string{"read_page", "search_web"},
		},
		{
			name:         "gather",
			description:  "Gather information from identified sources for: %s",
			baseDuration: 5 * time.Minute,
			permissions:  []string{"read_page", "search_web", "extract_content"},
		},
		{
			name:         "synthesize",
			description:  "Synthesize gathered findings into an answer for: %s",
			baseDuration: 3 * time.Minute,
			permissions:  []string{"read_page"},
		},
	},
	intent.CapabilityNavigation: {
		{
			name:         "locate",
			description:  "Resolve the target destination for: %s",
			baseDuration: 1 * time.Minute,
			permissions:  []string{"read_page", "search_web"},
		},
		{
			name:         "navigate",
			description:  "Navigate to the destination for: %s",
			baseDuration: 2 * time.Minute,
			permissions:  []string{"read_page", "navigate"},
			restrictions: []string{"submit_forms"},
		},
		{
			name:         "verify",
			description:  "Verify the destination matches the request: %s",
			baseDuration: 1 * time.Minute,
			permissions:  []string{"read_page"},
		},
	},
	intent.CapabilityShopping: {
		{
			name:         "search_products",
			description:  "Search product listings for: %s",
			baseDuration: 3 * time.Minute,
			permissions:  []string{"read_page", "search_web"},
			restrictions: []string{"submit_forms", "make_purchases"},
		},
		{
			name:         "compare_offers",
			description:  "Compare prices and offers found for: %s",
			baseDuration: 3 * time.Minute,
			permissions:  []string{"read_page", "extract_content"},
			restrictions: []string{"submit_forms", "make_purchases"},
		},
		{
			name:         "recommend",
			description:  "Summarize the best options for: %s",
			baseDuration: 2 * time.Minute,
			permissions:  []string{"read_page"},
		},
	},
	intent.CapabilityCommunication: {
		{
			name:         "draft",
			description:  "Draft the message for: %s",
			baseDuration: 2 * time.Minute,
			permissions:  []string{"compose"},
		},
		{
			name:         "review",
			description:  "Review the draft for tone and accuracy: %s",
			baseDuration: 1 * time.Minute,
			permissions:  []string{"compose"},
		},
		{
			name:         "deliver",
			description:  "Deliver the reviewed message for: %s",
			baseDuration: 1 * time.Minute,
			permissions:  []string{"compose", "send_message"},
			restrictions: []string{"bulk_send"},
		},
	},
	intent.CapabilityAutomation: {
		{
			name:         "analyze",
			description:  "Analyze the steps required to automate: %s",
			baseDuration: 3 * time.Minute,
			permissions:  []string{"read_page"},
		},
		{
			name:         "assess_security",
			description:  "Assess security implications of automating: %s",
			baseDuration: 2 * time.Minute,
			permissions:  []string{"read_page"},
			restrictions: []string{"submit_forms", "external_requests"},
		},
		{
			name:         "implement",
			description:  "Execute the automated steps for: %s",
			baseDuration: 5 * time.Minute,
			permissions:  []string{"read_page", "navigate", "fill_forms"},
			restrictions: []string{"make_purchases"},
		},
	},
	intent.CapabilityAnalysis: {
		{
			name:         "collect",
			description:  "Collect the data needed for: %s",
			baseDuration: 3 * time.Minute,
			permissions:  []string{"read_page", "extract_content"},
		},
		{
			name:         "analyze",
			description:  "Analyze the collected data for: %s",
			baseDuration: 4 * time.Minute,
			permissions:  []string{"read_page"},
		},
		{
			name:         "report",
			description:  "Report findings and trends for: %s",
			baseDuration: 2 * time.Minute,
			permissions:  []string{"read_page"},
		},
	},
	intent.CapabilityMonitoring: {
		{
			name:         "configure_watch",
			description:  "Configure what to watch for: %s",
			baseDuration: 2 * time.Minute,
			permissions:  []string{"read_page"},
		},
		{
			name:         "observe",
			description:  "Observe the watched targets for: %s",
			baseDuration: 5 * time.Minute,
			permissions:  []string{"read_page", "search_web"},
		},
		{
			name:         "alert",
			description:  "Summarize observed changes for: %s",
			baseDuration: 1 * time.Minute,
			permissions:  []string{"read_page"},
		},
	},
	intent.CapabilitySecurity: {
		{
			name:         "threat_assessment",
			description:  "Assess threats relevant to: %s",
			baseDuration: 4 * time.Minute,
			permissions:  []string{"read_page"},
			restrictions: []string{"submit_forms", "external_requests"},
		},
		{
			name:         "vulnerability_scan",
			description:  "Scan for vulnerabilities related to: %s",
			baseDuration: 5 * time.Minute,
			permissions:  []string{"read_page"},
			restrictions: []string{"submit_forms", "external_requests"},
			parallel:     true,
		},
	},
}

// highRiskRestrictions are appended to every subgoal's restriction list when
// the analyzed risk is high.
var highRiskRestrictions = []string{
	"submit_forms",
	"make_purchases",
	"external_requests",
}

// securityContext builds a subgoal security context from a template step
// scaled to the analyzed risk.
func securityContext(tmpl subGoalTemplate, risk RiskLevel) goal.SecurityContext {
	restrictions := append([]string(nil), tmpl.restrictions...)
	if risk == RiskHigh {
		for _, r := range highRiskRestrictions {
			if !slices.Contains(restrictions, r) {
				restrictions = append(restrictions, r)
			}
		}
	}
	return goal.SecurityContext{
		Permissions:  append([]string(nil), tmpl.permissions...),
		Restrictions: restrictions,
		RiskLevel:    risk.String(),
	}
}
