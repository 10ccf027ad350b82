package intent

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// ContactMethod is the channel a prospect prefers to be reached on.
type ContactMethod string

const (
	ContactWhatsApp ContactMethod = "whatsapp"
	ContactEmail    ContactMethod = "email"
)

// LeadData accumulates quote-request details over a capture flow. It is
// partial until every field except Company and ProjectDescription is set.
type LeadData struct {
	Name               string        `json:"name,omitempty"`
	Company            string        `json:"company,omitempty"`
	Services           []string      `json:"services,omitempty"`
	Timeline           string        `json:"timeline,omitempty"`
	Budget             string        `json:"budget,omitempty"`
	ContactMethod      ContactMethod `json:"contactMethod,omitempty"`
	ProjectDescription string        `json:"projectDescription,omitempty"`
}

// Result is the per-message outcome of intent evaluation. It is recomputed
// from the current lead data plus the latest message on every turn and never
// persisted.
type Result struct {
	HasBuyingIntent  bool
	NeedsLeadCapture bool
	CurrentStep      Step
	Lead             LeadData
}

const maxMessageLen = 2000

var buyingIntentKeywords = []string{
	"price", "pricing", "cost", "quote", "quotation", "estimate",
	"hire", "hiring", "work with", "collaborate", "partner",
	"contact", "reach out", "call", "whatsapp", "email",
	"get started", "start project", "begin", "interested",
	"budget", "afford", "pay", "investment",
}

// ServiceCatalog lists the canonical service names offered, in the order
// they are presented to a prospect.
var ServiceCatalog = []string{
	"AI Marketing & Automation",
	"Brand Strategy & Identity",
	"Graphic Design & Content",
	"Social Media Management",
	"Website & App Development",
	"CRM & Custom Software",
	"SEO & Performance Marketing",
	"AI Chatbots & Voice Assistants",
}

// serviceKeywords maps free-text phrasings to canonical service names. A
// slice keeps iteration order fixed, which determines the order detected
// services are reported in.
var serviceKeywords = []struct {
	keyword string
	service string
}{
	{"ai marketing", "AI Marketing & Automation"},
	{"automation", "AI Marketing & Automation"},
	{"branding", "Brand Strategy & Identity"},
	{"brand identity", "Brand Strategy & Identity"},
	{"logo", "Brand Strategy & Identity"},
	{"graphic design", "Graphic Design & Content"},
	{"content", "Graphic Design & Content"},
	{"social media", "Social Media Management"},
	{"website", "Website & App Development"},
	{"web development", "Website & App Development"},
	{"app development", "Website & App Development"},
	{"mobile app", "Website & App Development"},
	{"crm", "CRM & Custom Software"},
	{"software", "CRM & Custom Software"},
	{"seo", "SEO & Performance Marketing"},
	{"performance marketing", "SEO & Performance Marketing"},
	{"chatbot", "AI Chatbots & Voice Assistants"},
	{"voice assistant", "AI Chatbots & Voice Assistants"},
}

var injectionPatterns = []string{
	"ignore previous",
	"forget all",
	"you are now",
	"act as",
	"pretend to be",
	"system prompt",
	"override",
	"new instructions",
	"disregard",
	"you must",
	"your new role",
	"your new identity",
}

// DetectBuyingIntent reports whether the message suggests commercial
// interest. Plain case-insensitive substring match, first hit wins.
func DetectBuyingIntent(message string) bool {
	return containsAny(strings.ToLower(message), buyingIntentKeywords)
}

// DetectServices returns the canonical services mentioned in the message.
// Each canonical name appears at most once even when several synonyms match;
// output order follows the keyword table, not the message.
func DetectServices(message string) []string {
	lower := strings.ToLower(message)
	var detected []string
	for _, sk := range serviceKeywords {
		if strings.Contains(lower, sk.keyword) && !containsString(detected, sk.service) {
			detected = append(detected, sk.service)
		}
	}
	return detected
}

// NextStep evaluates the lead-capture state machine for one message. Without
// buying intent it returns a zero result and leaves the lead untouched
// (unless the lead is already complete). With intent, the active step is the
// first unset lead field in fixed order; when that step is services and the
// message names some, they are recorded and the flow advances straight to
// timeline.
func NextStep(message string, lead LeadData) Result {
	hasIntent := DetectBuyingIntent(message)
	step := activeStep(lead)

	// A fully captured lead needs nothing further regardless of the message.
	if !hasIntent && step != StepComplete {
		return Result{}
	}
	if step == StepComplete {
		return Result{HasBuyingIntent: hasIntent, CurrentStep: StepComplete, Lead: lead}
	}

	if step == StepServices && len(lead.Services) == 0 {
		if detected := DetectServices(message); len(detected) > 0 {
			lead.Services = detected
			step = StepTimeline
		}
	}

	return Result{
		HasBuyingIntent:  hasIntent,
		NeedsLeadCapture: step != StepComplete,
		CurrentStep:      step,
		Lead:             lead,
	}
}

// ApplyAnswer records a free-text reply as the value for the given step and
// returns the updated lead. Services answers are comma-separated; the contact
// answer is matched on "whatsapp", defaulting to email.
func ApplyAnswer(step Step, answer string, lead LeadData) LeadData {
	answer = strings.TrimSpace(answer)
	switch step {
	case StepName:
		lead.Name = answer
	case StepServices:
		var services []string
		for _, s := range strings.Split(answer, ",") {
			if s = strings.TrimSpace(s); s != "" {
				services = append(services, s)
			}
		}
		lead.Services = services
	case StepTimeline:
		lead.Timeline = answer
	case StepBudget:
		lead.Budget = answer
	case StepContact:
		if strings.Contains(strings.ToLower(answer), "whatsapp") {
			lead.ContactMethod = ContactWhatsApp
		} else {
			lead.ContactMethod = ContactEmail
		}
	}
	return lead
}

// BuildWhatsAppMessage renders the captured lead into the quote-request text
// placed behind the deep link. Labeled lines are omitted when their field is
// empty; the blank separators are fixed.
func BuildWhatsAppMessage(lead LeadData) string {
	var parts []string

	greeting := "Hi! I'm " + lead.Name
	if lead.Company != "" {
		greeting += " from " + lead.Company
	}
	parts = append(parts, greeting+".", "", "I'm interested in getting a quote for:", "")

	if len(lead.Services) > 0 {
		parts = append(parts, "Services Needed:")
		for _, service := range lead.Services {
			parts = append(parts, "• "+service)
		}
		parts = append(parts, "")
	}

	if lead.Timeline != "" {
		parts = append(parts, "Timeline: "+lead.Timeline)
	}
	if lead.Budget != "" {
		parts = append(parts, "Budget Range: "+lead.Budget)
	}
	if lead.ProjectDescription != "" {
		parts = append(parts, "", "Project Brief:", lead.ProjectDescription)
	}

	contact := "Email"
	if lead.ContactMethod == ContactWhatsApp {
		contact = "WhatsApp"
	}
	parts = append(parts, "", "Preferred Contact: "+contact, "", "Looking forward to discussing this project!")

	return strings.Join(parts, "\n")
}

// BuildWhatsAppURL percent-encodes the quote message into a wa.me deep link.
// The phone number passes through unmodified.
func BuildWhatsAppURL(lead LeadData, phoneNumber string) string {
	return "https://wa.me/" + phoneNumber + "?text=" + url.QueryEscape(BuildWhatsAppMessage(lead))
}

// ValidateInput rejects empty or oversized messages with fixed user-safe
// errors.
func ValidateInput(message string) error {
	if strings.TrimSpace(message) == "" {
		return errEmptyMessage
	}
	if utf8.RuneCountInString(message) > maxMessageLen {
		return errMessageTooLong
	}
	return nil
}

// DetectPromptInjection flags messages containing known manipulation
// phrasings; callers must refuse to forward flagged messages to the response
// generator.
func DetectPromptInjection(message string) bool {
	return containsAny(strings.ToLower(message), injectionPatterns)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
