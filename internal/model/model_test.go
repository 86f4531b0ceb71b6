package model

import "testing"

func TestTaskTypeDefaults(t *testing.T) {
	tests := []struct {
		task      TaskType
		minWords  int
		timeLimit int
	}{
		{TaskType1, 150, 1200},
		{TaskType2, 250, 2400},
	}
	for _, tt := range tests {
		t.Run(string(tt.task), func(t *testing.T) {
			if got := tt.task.MinWords(); got != tt.minWords {
				t.Errorf("MinWords() = %d, want %d", got, tt.minWords)
			}
			if got := tt.task.TimeLimit(); got != tt.timeLimit {
				t.Errorf("TimeLimit() = %d, want %d", got, tt.timeLimit)
			}
		})
	}
}

func TestNewDraft(t *testing.T) {
	d := NewDraft("")
	if d.TaskType != TaskType2 {
		t.Errorf("default task = %q, want task2", d.TaskType)
	}
	if d.RemainingSeconds != 2400 {
		t.Errorf("default timer = %d, want 2400", d.RemainingSeconds)
	}
	if d.TimerRunning {
		t.Error("new draft timer should be stopped")
	}
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"blank", "  \n\t ", 0},
		{"single", "word", 1},
		{"mixed whitespace", " one\ttwo\n\nthree  four ", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WordCount(tt.in); got != tt.want {
				t.Errorf("WordCount(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode("EXAM"); !ok || m != ModeExam {
		t.Errorf("ParseMode(EXAM) = %q, %v", m, ok)
	}
	if _, ok := ParseMode("quiz"); ok {
		t.Error("ParseMode(quiz) should fail")
	}
	if tt, ok := ParseTaskType("task1"); !ok || tt != TaskType1 {
		t.Errorf("ParseTaskType(task1) = %q, %v", tt, ok)
	}
}
