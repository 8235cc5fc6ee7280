package remote

import (
	"context"
	"fmt"

	"github.com/dailydrops/drops/pkg/telemetry"
)

// Mutations enqueue work against an eventually consistent service: a
// created discussion is not guaranteed to be visible through the
// listing or search until propagation completes. Confirmation is the
// poller's job, not the mutation's.

const createDiscussionMutation = `
  mutation CreateDiscussion($repositoryId: ID!, $categoryId: ID!, $title: String!, $body: String!) {
    createDiscussion(input: {
      repositoryId: $repositoryId
      categoryId: $categoryId
      title: $title
      body: $body
    }) {
      clientMutationId
    }
  }
`

const updateDiscussionMutation = `
  mutation UpdateDiscussion($discussionId: ID!, $title: String!, $body: String!) {
    updateDiscussion(input: {
      discussionId: $discussionId
      title: $title
      body: $body
    }) {
      clientMutationId
    }
  }
`

const deleteDiscussionMutation = `
  mutation DeleteDiscussion($id: ID!) {
    deleteDiscussion(input: { id: $id }) {
      clientMutationId
    }
  }
`

const repositoryIDQuery = `
  query RepositoryId($owner: String!, $name: String!) {
    repository(owner: $owner, name: $name) {
      id
    }
  }
`

const addCommentMutation = `
  mutation AddComment($discussionId: ID!, $body: String!, $replyToId: ID) {
    addDiscussionComment(input: {
      discussionId: $discussionId
      body: $body
      replyToId: $replyToId
    }) {
      comment {
        id
      }
    }
  }
`

const deleteCommentMutation = `
  mutation DeleteComment($id: ID!) {
    deleteDiscussionComment(input: { id: $id }) {
      clientMutationId
    }
  }
`

const addReactionMutation = `
  mutation AddReaction($subjectId: ID!, $content: ReactionContent!) {
    addReaction(input: { subjectId: $subjectId, content: $content }) {
      clientMutationId
    }
  }
`

const removeReactionMutation = `
  mutation RemoveReaction($subjectId: ID!, $content: ReactionContent!) {
    removeReaction(input: { subjectId: $subjectId, content: $content }) {
      clientMutationId
    }
  }
`

// CreateDiscussion submits a new document to the configured category.
// The new remote identifier is not returned; it surfaces later through
// listing or search once propagation completes.
func (c *Client) CreateDiscussion(ctx context.Context, token, title, body string) error {
	ctx, span := telemetry.StartSpan(ctx, "remote.create_discussion")
	defer span.End()

	repositoryID, err := c.repositoryID(ctx, token)
	if err != nil {
		return err
	}

	_, err = c.Call(ctx, createDiscussionMutation, map[string]interface{}{
		"repositoryId": repositoryID,
		"categoryId":   c.categoryID,
		"title":        title,
		"body":         body,
	}, token)
	if err != nil {
		return fmt.Errorf("failed to create discussion: %w", err)
	}
	return nil
}

// UpdateDiscussion replaces the title and body of an existing document
func (c *Client) UpdateDiscussion(ctx context.Context, token, discussionID, title, body string) error {
	ctx, span := telemetry.StartSpan(ctx, "remote.update_discussion")
	defer span.End()

	_, err := c.Call(ctx, updateDiscussionMutation, map[string]interface{}{
		"discussionId": discussionID,
		"title":        title,
		"body":         body,
	}, token)
	if err != nil {
		return fmt.Errorf("failed to update discussion %s: %w", discussionID, err)
	}
	return nil
}

// DeleteDiscussion removes a document by remote identifier
func (c *Client) DeleteDiscussion(ctx context.Context, token, discussionID string) error {
	ctx, span := telemetry.StartSpan(ctx, "remote.delete_discussion")
	defer span.End()

	_, err := c.Call(ctx, deleteDiscussionMutation, map[string]interface{}{
		"id": discussionID,
	}, token)
	if err != nil {
		return fmt.Errorf("failed to delete discussion %s: %w", discussionID, err)
	}
	return nil
}

// AddComment adds a comment to a discussion, optionally as a reply to
// an existing comment. Returns the new comment identifier.
func (c *Client) AddComment(ctx context.Context, token, discussionID, body, replyToID string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "remote.add_comment")
	defer span.End()

	variables := map[string]interface{}{
		"discussionId": discussionID,
		"body":         body,
	}
	if replyToID != "" {
		variables["replyToId"] = replyToID
	}

	data, err := c.Call(ctx, addCommentMutation, variables, token)
	if err != nil {
		return "", fmt.Errorf("failed to add comment: %w", err)
	}

	var response struct {
		AddDiscussionComment struct {
			Comment struct {
				ID string `json:"id"`
			} `json:"comment"`
		} `json:"addDiscussionComment"`
	}
	if err := unmarshalData(data, &response); err != nil {
		return "", err
	}
	return response.AddDiscussionComment.Comment.ID, nil
}

// DeleteComment removes a comment by identifier
func (c *Client) DeleteComment(ctx context.Context, token, commentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "remote.delete_comment")
	defer span.End()

	_, err := c.Call(ctx, deleteCommentMutation, map[string]interface{}{
		"id": commentID,
	}, token)
	if err != nil {
		return fmt.Errorf("failed to delete comment %s: %w", commentID, err)
	}
	return nil
}

// AddReaction adds a reaction to a post or comment
func (c *Client) AddReaction(ctx context.Context, token, subjectID, content string) error {
	ctx, span := telemetry.StartSpan(ctx, "remote.add_reaction")
	defer span.End()

	_, err := c.Call(ctx, addReactionMutation, map[string]interface{}{
		"subjectId": subjectID,
		"content":   content,
	}, token)
	if err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	return nil
}

// RemoveReaction removes a reaction from a post or comment
func (c *Client) RemoveReaction(ctx context.Context, token, subjectID, content string) error {
	ctx, span := telemetry.StartSpan(ctx, "remote.remove_reaction")
	defer span.End()

	_, err := c.Call(ctx, removeReactionMutation, map[string]interface{}{
		"subjectId": subjectID,
		"content":   content,
	}, token)
	if err != nil {
		return fmt.Errorf("failed to remove reaction: %w", err)
	}
	return nil
}

func (c *Client) repositoryID(ctx context.Context, token string) (string, error) {
	data, err := c.Call(ctx, repositoryIDQuery, map[string]interface{}{
		"owner": c.owner,
		"name":  c.name,
	}, token)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repository id: %w", err)
	}

	var response struct {
		Repository struct {
			ID string `json:"id"`
		} `json:"repository"`
	}
	if err := unmarshalData(data, &response); err != nil {
		return "", err
	}
	if response.Repository.ID == "" {
		return "", fmt.Errorf("repository %s/%s not found", c.owner, c.name)
	}
	return response.Repository.ID, nil
}
