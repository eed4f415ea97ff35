package studio

import (
	"context"
	"strconv"
	"strings"

	"github.com/zhengjr9/genrelay/internal/gemini"
)

type LessonPlanInput struct {
	Subject         string   `json:"subject" validate:"required"`
	Topic           string   `json:"topic,omitempty"`
	Level           string   `json:"level" validate:"required"`
	DurationMinutes int      `json:"durationMinutes" validate:"gt=0,lte=480"`
	Objectives      []string `json:"objectives,omitempty"`
	Language        string   `json:"language,omitempty"`
}

type LessonStage struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"durationMinutes"`
	Activity        string `json:"activity"`
	TeacherNotes    string `json:"teacherNotes,omitempty"`
}

type LessonPlan struct {
	Title      string        `json:"title"`
	Objectives []string      `json:"objectives"`
	Materials  []string      `json:"materials"`
	Stages     []LessonStage `json:"stages"`
	Assessment string        `json:"assessment"`
	Homework   string        `json:"homework,omitempty"`
}

var lessonPlanSchema = gemini.Object(map[string]*gemini.Schema{
	"title":      gemini.String(""),
	"objectives": gemini.ArrayOf(gemini.String("")),
	"materials":  gemini.ArrayOf(gemini.String("")),
	"stages": gemini.ArrayOf(gemini.Object(map[string]*gemini.Schema{
		"name":            gemini.String("e.g. Warm-up, Presentation, Practice"),
		"durationMinutes": gemini.Integer(""),
		"activity":        gemini.String(""),
		"teacherNotes":    gemini.String(""),
	}, "name", "durationMinutes", "activity")),
	"assessment": gemini.String(""),
	"homework":   gemini.String(""),
}, "title", "objectives", "materials", "stages", "assessment")

const teacherSystem = "You are an experienced teacher and curriculum designer. Respond only with JSON matching the schema."

// GenerateLessonPlan drafts a staged lesson plan whose stage durations fit
// the requested length.
func (s *Service) GenerateLessonPlan(ctx context.Context, in LessonPlanInput) (*LessonPlan, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	prompt := "Design a lesson plan.\n" + lines(
		"Subject", in.Subject,
		"Topic", in.Topic,
		"Student level", in.Level,
		"Duration in minutes", strconv.Itoa(in.DurationMinutes),
		"Objectives", strings.Join(in.Objectives, "; "),
		"Output language", in.Language,
	)
	req := s.jsonRequest(teacherSystem, lessonPlanSchema, 0.7, gemini.TextPart(prompt))
	out, err := runJSON[LessonPlan](ctx, s, "Failed to generate lesson plan", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// HomeworkInput carries the student's work as text, a photo, or both.
type HomeworkInput struct {
	Assignment  string    `json:"assignment,omitempty"`
	StudentWork string    `json:"studentWork" validate:"required_without=Image"`
	Image       *Document `json:"image,omitempty" validate:"omitempty"`
	Level       string    `json:"level,omitempty"`
	Language    string    `json:"language,omitempty"`
}

type Correction struct {
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	Explanation string `json:"explanation"`
}

type HomeworkCorrection struct {
	Score       int          `json:"score"`
	Corrections []Correction `json:"corrections"`
	Feedback    string       `json:"feedback"`
}

var homeworkSchema = gemini.Object(map[string]*gemini.Schema{
	"score": gemini.Integer("0 to 100"),
	"corrections": gemini.ArrayOf(gemini.Object(map[string]*gemini.Schema{
		"original":    gemini.String(""),
		"corrected":   gemini.String(""),
		"explanation": gemini.String(""),
	}, "original", "corrected", "explanation")),
	"feedback": gemini.String("Encouraging feedback addressed to the student"),
}, "score", "corrections", "feedback")

// CorrectHomework marks a piece of student work.
func (s *Service) CorrectHomework(ctx context.Context, in HomeworkInput) (*HomeworkCorrection, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	prompt := "Correct this student's homework.\n" + lines(
		"Assignment", in.Assignment,
		"Student level", in.Level,
		"Feedback language", in.Language,
	)
	parts := []gemini.Part{gemini.TextPart(prompt)}
	if in.Image != nil {
		parts = append(parts, in.Image.part())
	}
	if in.StudentWork != "" {
		parts = append(parts, gemini.TextPart("Student work:\n"+in.StudentWork))
	}
	req := s.jsonRequest(teacherSystem, homeworkSchema, 0.2, parts...)
	out, err := runJSON[HomeworkCorrection](ctx, s, "Failed to correct homework", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
