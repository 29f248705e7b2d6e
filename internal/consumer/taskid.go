package consumer

import "github.com/google/uuid"

func generateTaskID() string {
	return uuid.NewString()
}
