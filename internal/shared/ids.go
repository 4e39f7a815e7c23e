package shared

import "github.com/google/uuid"

// ParseID returns id in canonical UUID form. Every primary key is a UUID, so
// anything unparseable is reported as the entity not existing.
func ParseID(entity, id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", NotFound(entity)
	}
	return parsed.String(), nil
}
