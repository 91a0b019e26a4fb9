// Package neo4j holds the equipment relation graph: which equipment feeds,
// cools, powers, or belongs to which system aboard each yacht. Search uses
// it to suggest related equipment next to a hit.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/pkg/circuitbreaker"
	"github.com/yachtops/pms-backend/pkg/logger"
	"github.com/yachtops/pms-backend/pkg/retry"
)

type Client struct {
	driver neo4j.DriverWithContext
	cb     *circuitbreaker.Breaker
	policy retry.Policy
}

// EquipmentNode is one piece of equipment in the graph, always scoped to
// its yacht.
type EquipmentNode struct {
	YachtID       string
	Name          string
	CanonicalName string
	System        string
}

// Relation links two equipment nodes on the same yacht. Predicate is one
// of PART_OF, FEEDS, COOLS, POWERS.
type Relation struct {
	YachtID    string
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
}

// RelatedEquipment is a graph suggestion attached to a search response.
type RelatedEquipment struct {
	Name       string  `json:"name"`
	System     string  `json:"system"`
	Predicate  string  `json:"relation"`
	Anchor     string  `json:"anchor"`
	Confidence float64 `json:"confidence"`
}

func NewClient(uri, username, password string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.New("neo4j", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         20 * time.Second,
		HalfOpenProbes:   3,
		Logger:           logger.GetLogger(),
	})

	policy := retry.Policy{
		Attempts:  3,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  3 * time.Second,
		Logger:    logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver: driver,
		cb:     cb,
		policy: policy,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return c.policy.Do(ctx, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

func (c *Client) UpsertEquipment(ctx context.Context, node *EquipmentNode) error {
	if node.YachtID == "" {
		return fmt.Errorf("equipment node requires a yacht_id")
	}

	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MERGE (e:Equipment {yacht_id: $yacht_id, canonical_name: $canonical_name})
			SET e.name = $name,
			    e.system = $system,
			    e.updated_at = timestamp()
		`

		_, err := session.Run(ctx, query, map[string]interface{}{
			"yacht_id":       node.YachtID,
			"canonical_name": node.CanonicalName,
			"name":           node.Name,
			"system":         node.System,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert equipment node: %w", err)
		}

		logger.Debug("Equipment node upserted",
			zap.String("yacht_id", node.YachtID),
			zap.String("name", node.Name),
		)
		return nil
	})
}

func (c *Client) CreateRelation(ctx context.Context, relation *Relation) error {
	switch relation.Predicate {
	case "PART_OF", "FEEDS", "COOLS", "POWERS":
	default:
		return fmt.Errorf("unknown relation predicate: %s", relation.Predicate)
	}

	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MATCH (s:Equipment {yacht_id: $yacht_id, canonical_name: $subject})
			MATCH (o:Equipment {yacht_id: $yacht_id, canonical_name: $object})
			MERGE (s)-[r:RELATES {type: $predicate}]->(o)
			SET r.confidence = $confidence,
			    r.created_at = timestamp()
		`

		_, err := session.Run(ctx, query, map[string]interface{}{
			"yacht_id":   relation.YachtID,
			"subject":    relation.Subject,
			"predicate":  relation.Predicate,
			"object":     relation.Object,
			"confidence": relation.Confidence,
		})
		if err != nil {
			return fmt.Errorf("failed to create relation: %w", err)
		}

		logger.Debug("Equipment relation created",
			zap.String("yacht_id", relation.YachtID),
			zap.String("subject", relation.Subject),
			zap.String("predicate", relation.Predicate),
			zap.String("object", relation.Object),
		)
		return nil
	})
}

// RelatedEquipment returns equipment one hop away from any of the named
// anchors, within the caller's yacht only.
func (c *Client) RelatedEquipment(ctx context.Context, yachtID string, names []string, limit int) ([]RelatedEquipment, error) {
	if yachtID == "" {
		return nil, fmt.Errorf("graph lookup requires a yacht_id")
	}
	if len(names) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	var related []RelatedEquipment

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MATCH (a:Equipment {yacht_id: $yacht_id})-[r:RELATES]-(b:Equipment {yacht_id: $yacht_id})
			WHERE a.canonical_name IN $names OR a.name IN $names
			RETURN DISTINCT b.name AS name, b.system AS system,
			       r.type AS predicate, a.name AS anchor, r.confidence AS confidence
			ORDER BY confidence DESC
			LIMIT $limit
		`

		result, err := session.Run(ctx, query, map[string]interface{}{
			"yacht_id": yachtID,
			"names":    names,
			"limit":    limit,
		})
		if err != nil {
			return fmt.Errorf("failed to query related equipment: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()

			name, _ := record.Get("name")
			system, _ := record.Get("system")
			predicate, _ := record.Get("predicate")
			anchor, _ := record.Get("anchor")
			confidence, _ := record.Get("confidence")

			rel := RelatedEquipment{}
			if v, ok := name.(string); ok {
				rel.Name = v
			}
			if v, ok := system.(string); ok {
				rel.System = v
			}
			if v, ok := predicate.(string); ok {
				rel.Predicate = v
			}
			if v, ok := anchor.(string); ok {
				rel.Anchor = v
			}
			if v, ok := confidence.(float64); ok {
				rel.Confidence = v
			}
			related = append(related, rel)
		}

		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	logger.Debug("Related equipment lookup completed",
		zap.String("yacht_id", yachtID),
		zap.Int("anchors", len(names)),
		zap.Int("results", len(related)),
	)

	return related, nil
}
