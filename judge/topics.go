package judge

import (
	_ "embed"
	"encoding/json"
	"math/rand"
)

//go:embed topics.json
var topicsJSON []byte

// Topic is one entry of the built-in question database the judge
// draws from.
type Topic struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

var topics []Topic

func init() {
	var db struct {
		Topics []Topic `json:"topics"`
	}
	if err := json.Unmarshal(topicsJSON, &db); err != nil {
		panic("judge: bad embedded topic database: " + err.Error())
	}
	topics = db.Topics
}

// Topics lists the available topics, for display and for SET_CONTENT
// choices.
func Topics() []Topic {
	return append([]Topic(nil), topics...)
}

// pickTopic returns the topic with the given id, or a random one when
// the id is empty or unknown.
func pickTopic(contentID string) Topic {
	if contentID != "" {
		for _, t := range topics {
			if t.ID == contentID {
				return t
			}
		}
	}
	return topics[rand.Intn(len(topics))]
}
