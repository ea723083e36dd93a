// Package verification holds the closed set of answer-set checks a question
// group may attach. Groups refer to a check by its ID.
package verification

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Predicate inspects a complete answer map (question text -> value) and
// returns a descriptive error when the combination is not acceptable.
type Predicate func(answers map[string]string) error

// Known check identifiers.
const (
	NoEmptyAnswers           = "no_empty_answers"
	PeopleCountDescription   = "people_count_description"
	CameraMovementConsistent = "camera_movement_consistent"
	WeatherDescription       = "weather_description"
)

var registry = map[string]Predicate{
	NoEmptyAnswers:           noEmptyAnswers,
	PeopleCountDescription:   peopleCountDescription,
	CameraMovementConsistent: cameraMovementConsistent,
	WeatherDescription:       weatherDescription,
}

// Lookup returns the predicate registered under id.
func Lookup(id string) (Predicate, bool) {
	p, ok := registry[id]
	return p, ok
}

// Exists reports whether id names a registered check. The empty id means
// "no check" and is always accepted.
func Exists(id string) bool {
	if id == "" {
		return true
	}
	_, ok := registry[id]
	return ok
}

// Run executes the check id over answers. An empty id is a no-op.
func Run(id string, answers map[string]string) error {
	if id == "" {
		return nil
	}
	p, ok := registry[id]
	if !ok {
		return fmt.Errorf("unknown verification function %q", id)
	}
	return p(answers)
}

// IDs lists the registered identifiers in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Question texts the built-in checks look at.
const (
	QuestionPeopleCount       = "Number of people?"
	QuestionPeopleDescription = "Describe the people"
	QuestionCameraMoving      = "Is the camera moving?"
	QuestionCameraDirection   = "Camera movement direction"
	QuestionRaining           = "Is it raining?"
	QuestionWeatherNotes      = "Describe the weather"
)

func noEmptyAnswers(answers map[string]string) error {
	var empty []string
	for q, v := range answers {
		if strings.TrimSpace(v) == "" {
			empty = append(empty, q)
		}
	}
	if len(empty) > 0 {
		sort.Strings(empty)
		return fmt.Errorf("answers cannot be empty: %s", strings.Join(empty, ", "))
	}
	return nil
}

// peopleCountDescription requires an empty description when nobody is in
// frame and a non-empty one otherwise.
func peopleCountDescription(answers map[string]string) error {
	count, ok := answers[QuestionPeopleCount]
	if !ok {
		return nil
	}
	desc := strings.TrimSpace(answers[QuestionPeopleDescription])

	none := count == "0" || strings.EqualFold(count, "none")
	if !none {
		if n, err := strconv.Atoi(count); err == nil && n <= 0 {
			none = true
		}
	}
	if none && desc != "" {
		return fmt.Errorf("description must be empty when %q is %s", QuestionPeopleCount, count)
	}
	if !none && desc == "" {
		return fmt.Errorf("description is required when %q is %s", QuestionPeopleCount, count)
	}
	return nil
}

// cameraMovementConsistent rejects a movement direction on a static camera.
func cameraMovementConsistent(answers map[string]string) error {
	moving, ok := answers[QuestionCameraMoving]
	if !ok {
		return nil
	}
	dir := answers[QuestionCameraDirection]
	if strings.EqualFold(moving, "No") && dir != "" && !strings.EqualFold(dir, "None") {
		return fmt.Errorf("camera direction %q given but camera is not moving", dir)
	}
	if strings.EqualFold(moving, "Yes") && (dir == "" || strings.EqualFold(dir, "None")) {
		return fmt.Errorf("camera direction is required when the camera is moving")
	}
	return nil
}

// weatherDescription requires weather notes whenever it is raining.
func weatherDescription(answers map[string]string) error {
	if strings.EqualFold(answers[QuestionRaining], "Yes") && strings.TrimSpace(answers[QuestionWeatherNotes]) == "" {
		return fmt.Errorf("%q is required when it is raining", QuestionWeatherNotes)
	}
	return nil
}
