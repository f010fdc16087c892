package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/spacesedan/moodlens/internal/models"
)

const batchSystemPrompt = `You are a sentiment classifier. For every numbered comment decide whether it is positive, negative or neutral.
Respond with only a JSON array that has exactly one element per comment, in the same order, matching this JSON schema:
%s`

const singleSystemPrompt = `You are a sentiment classifier. Reply with exactly one word: positive, negative or neutral.`

var (
	batchSchemaOnce sync.Once
	batchSchema     string
)

func labelSchema() string {
	batchSchemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties:  false,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: false,
		}
		schema := reflector.Reflect([]models.BatchLabel{})
		schema.Version = ""
		b, err := json.Marshal(schema)
		if err != nil {
			batchSchema = `{"type":"array","items":{"type":"object","properties":{"sentiment":{"enum":["positive","negative","neutral"]}}}}`
			return
		}
		batchSchema = string(b)
	})
	return batchSchema
}

// BatchPrompt builds the system and user messages for one batch.
func BatchPrompt(comments []string) (system, user string) {
	var sb strings.Builder
	for i, c := range comments {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c)
	}
	return fmt.Sprintf(batchSystemPrompt, labelSchema()), strings.TrimRight(sb.String(), "\n")
}

// SinglePrompt builds the system and user messages for one comment.
func SinglePrompt(comment string) (system, user string) {
	return singleSystemPrompt, comment
}
