package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// Role selects which resources a process depends on. The relay only publishes
// and the worker only subscribes, so each verifies its own side at startup
// and on Ping.
type Role int

const (
	RolePublisher Role = iota
	RoleSubscriber
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

var errProjectIDRequired = errors.New("gcp project id is required")

type Client struct {
	conn      *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	role      Role
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	conn, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{conn: conn, projectID: projectID, cfg: cfg, role: role}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"gcp_project": projectID,
			"resources":   c.required(),
		}), "pubsub client initialized")
	}
	return c, nil
}

// required lists the resource IDs this client's role cannot run without.
func (c *Client) required() []string {
	var names []string
	if c.role == RolePublisher {
		names = []string{c.cfg.OrdersTopic, c.cfg.CatalogTopic}
	} else {
		names = []string{c.cfg.NotificationSubscription, c.cfg.CatalogSubscription}
	}
	out := names[:0]
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Ping checks that every resource the role depends on exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return errors.New("pubsub client not initialized")
	}
	names := c.required()
	if len(names) == 0 {
		return fmt.Errorf("no pubsub resources configured for role %d", c.role)
	}
	var errs error
	for _, name := range names {
		errs = multierr.Append(errs, c.exists(ctx, name))
	}
	return errs
}

func (c *Client) exists(ctx context.Context, name string) error {
	var err error
	if c.role == RolePublisher {
		_, err = c.conn.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
			Topic: resourceName(c.projectID, kindTopic, name),
		})
	} else {
		_, err = c.conn.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: resourceName(c.projectID, kindSubscription, name),
		})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", strings.TrimSuffix(kindFor(c.role), "s"), name)
	default:
		return fmt.Errorf("checking pubsub %q: %w", name, err)
	}
}

func kindFor(role Role) string {
	if role == RolePublisher {
		return kindTopic
	}
	return kindSubscription
}

// Subscription accepts a subscription ID or a full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.conn == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.conn.Subscriber(resourceName(c.projectID, kindSubscription, name))
}

func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationSubscription)
}

func (c *Client) CatalogSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.CatalogSubscription)
}

// Publisher accepts a topic ID or a full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.conn == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.conn.Publisher(resourceName(c.projectID, kindTopic, name))
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// resourceName expands an ID to projects/<project>/<kind>/<id>. Names that are
// already fully qualified pass through.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	return "projects/" + projectID + "/" + kind + "/" + name
}
