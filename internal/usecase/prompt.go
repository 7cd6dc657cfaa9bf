package usecase

import (
	"fmt"
	"strings"

	"insurance-agent/internal/domain"
)

// AdmissionsPhone is the fallback offered whenever online verification cannot
// continue.
const AdmissionsPhone = "(800) 555-0123"

func greeting(welcomeBack bool, p Policy) string {
	var b strings.Builder
	if welcomeBack {
		b.WriteString("Welcome back! ")
	}
	b.WriteString("Hi, I'm the NewVisionWellness insurance assistant. I'll ask a few quick questions to check your benefits.")
	if !p.explicitConsent() {
		b.WriteString(" Your information is used only to verify your coverage and is protected under HIPAA. By continuing you agree to share it for this purpose.")
	}
	return b.String()
}

const consentPrompt = "Before we begin, do you consent to sharing your name, date of birth and insurance details so we can verify your benefits? Reply \"I agree\" to continue or \"no\" to decline."

const consentDeclined = "We understand. Without your consent we can't verify your insurance online. Please call our admissions team at " + AdmissionsPhone + " and we'll be glad to help."

const consentRequired = "We need your consent before we can submit your information. " + consentPrompt

const startOver = "No problem, let's start over."

const terminalNotice = "This verification is finished. Type \"start over\" to begin a new one."

const verificationFailed = "We're sorry, we couldn't complete your verification right now. Please call our admissions team at " + AdmissionsPhone + ", or type \"start over\" to try again."

var fieldPrompts = map[domain.Step]string{
	domain.StepName:     "What is your full name?",
	domain.StepDOB:      "What is your date of birth? Please use MM/DD/YYYY.",
	domain.StepProvider: "Who is your insurance provider? For example Aetna, Cigna or Blue Cross.",
	domain.StepPolicyID: "What is your policy or member ID? You'll find it on your insurance card.",
}

var fieldRetries = map[domain.Step]string{
	domain.StepName:     "Please enter your full name (at least 2 characters).",
	domain.StepDOB:      "That date doesn't look right. Please enter your date of birth as MM/DD/YYYY.",
	domain.StepProvider: "Please enter the name of your insurance provider (at least 2 characters).",
	domain.StepPolicyID: "Please enter your policy or member ID (at least 3 characters).",
}

func summary(f domain.PartialPatientRecord, p Policy) string {
	lines := []string{
		"Please confirm your details:",
		"Name: " + f.Name,
		"Date of birth: " + f.DateOfBirth,
		"Insurance provider: " + f.InsuranceProvider,
		"Policy ID: " + f.PolicyID,
	}
	if p.Confirm == ConfirmKeyword {
		lines = append(lines, "Type \"confirm\" to submit securely, or anything else to start over.")
	} else {
		lines = append(lines, "Is everything correct? Reply yes to submit, or no to start over.")
	}
	return strings.Join(lines, "\n")
}

func resultMessage(r domain.VerificationResult) string {
	return fmt.Sprintf("%s: %s\n%s\nNext steps: %s", r.Status.Title(), r.PlanName, r.CoverageSummary, r.NextSteps)
}

func followUp(r domain.VerificationResult) string {
	if r.Status == domain.StatusPlanNotFound || r.PlanName == "" || strings.EqualFold(r.PlanName, "N/A") {
		return "Our admissions team can help you by phone at " + AdmissionsPhone + ". Type \"start over\" to begin a new verification."
	}
	return "Our admissions team will follow up about your " + r.PlanName + " plan. Type \"start over\" to begin a new verification."
}
