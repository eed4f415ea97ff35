package studio

import (
	"context"
	"fmt"

	"github.com/zhengjr9/genrelay/internal/gemini"
)

// ResumeInput is either pasted résumé text or an uploaded document.
type ResumeInput struct {
	ResumeText   string    `json:"resumeText" validate:"required_without=Document"`
	Document     *Document `json:"document,omitempty" validate:"omitempty"`
	TargetRole   string    `json:"targetRole" validate:"required"`
	TargetMarket string    `json:"targetMarket,omitempty"`
	Language     string    `json:"language,omitempty"`
}

func (in *ResumeInput) parts(prompt string) []gemini.Part {
	parts := []gemini.Part{gemini.TextPart(prompt)}
	if in.Document != nil {
		parts = append(parts, in.Document.part())
	}
	if in.ResumeText != "" {
		parts = append(parts, gemini.TextPart("Résumé:\n"+in.ResumeText))
	}
	return parts
}

type Improvement struct {
	Section    string `json:"section"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
}

type ResumeAnalysis struct {
	Score           int           `json:"score"`
	Summary         string        `json:"summary"`
	Strengths       []string      `json:"strengths"`
	Improvements    []Improvement `json:"improvements"`
	OptimizedResume string        `json:"optimizedResume"`
}

var resumeAnalysisSchema = gemini.Object(map[string]*gemini.Schema{
	"score":     gemini.Integer("Overall fit for the target role, 0 to 100"),
	"summary":   gemini.String("Two or three sentence assessment"),
	"strengths": gemini.ArrayOf(gemini.String("")),
	"improvements": gemini.ArrayOf(gemini.Object(map[string]*gemini.Schema{
		"section":    gemini.String("Résumé section the issue is in"),
		"issue":      gemini.String(""),
		"suggestion": gemini.String(""),
	}, "section", "issue", "suggestion")),
	"optimizedResume": gemini.String("The rewritten résumé in markdown"),
}, "score", "summary", "strengths", "improvements", "optimizedResume")

const resumeSystem = "You are an experienced recruiter who reviews résumés for international job markets. Respond only with JSON matching the schema."

// AnalyzeResume scores a résumé against a target role and returns an
// optimized rewrite.
func (s *Service) AnalyzeResume(ctx context.Context, in ResumeInput) (*ResumeAnalysis, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	prompt := "Analyze this résumé for the target role and rewrite it.\n" + lines(
		"Target role", in.TargetRole,
		"Target market", in.TargetMarket,
		"Output language", in.Language,
	)
	req := s.jsonRequest(resumeSystem, resumeAnalysisSchema, 0.4, in.parts(prompt)...)
	out, err := runJSON[ResumeAnalysis](ctx, s, "Failed to process resume", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// InterviewInput asks for Count questions; zero means five.
type InterviewInput struct {
	ResumeInput
	Count int `json:"count,omitempty" validate:"gte=0,lte=20"`
}

type InterviewQuestion struct {
	Question string `json:"question"`
	Category string `json:"category"`
	Tip      string `json:"tip"`
}

type InterviewQuestions struct {
	Questions []InterviewQuestion `json:"questions"`
}

var interviewSchema = gemini.Object(map[string]*gemini.Schema{
	"questions": gemini.ArrayOf(gemini.Object(map[string]*gemini.Schema{
		"question": gemini.String(""),
		"category": gemini.Enum("", "behavioral", "technical", "situational", "motivation"),
		"tip":      gemini.String("How to answer well, based on the résumé"),
	}, "question", "category", "tip")),
}, "questions")

// GenerateInterviewQuestions predicts likely interview questions for the
// candidate and role.
func (s *Service) GenerateInterviewQuestions(ctx context.Context, in InterviewInput) (*InterviewQuestions, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	count := in.Count
	if count == 0 {
		count = 5
	}
	prompt := fmt.Sprintf("Write %d interview questions this candidate is likely to be asked.\n", count) + lines(
		"Target role", in.TargetRole,
		"Target market", in.TargetMarket,
		"Output language", in.Language,
	)
	req := s.jsonRequest(resumeSystem, interviewSchema, 0.7, in.parts(prompt)...)
	out, err := runJSON[InterviewQuestions](ctx, s, "Failed to generate interview questions", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
