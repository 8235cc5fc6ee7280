package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dailydrops/drops/internal/codec"
	"github.com/dailydrops/drops/internal/models"
	"github.com/dailydrops/drops/pkg/telemetry"
)

const getDiscussionsQuery = `
  query GetDiscussions($owner: String!, $name: String!, $categoryId: ID!, $first: Int!) {
    repository(owner: $owner, name: $name) {
      discussions(
        categoryId: $categoryId
        first: $first
        orderBy: { field: CREATED_AT, direction: DESC }
        states: [OPEN]
      ) {
        nodes {
          id
          number
          title
          body
          createdAt
          comments {
            totalCount
          }
          author {
            login
            avatarUrl
          }
        }
      }
    }
  }
`

const getDiscussionByIDQuery = `
  query GetDiscussionById($id: ID!) {
    node(id: $id) {
      ... on Discussion {
        id
        number
        title
        body
        createdAt
        comments(first: 50) {
          totalCount
          nodes {
            id
            body
            createdAt
            author {
              login
              avatarUrl
            }
            replies(first: 50) {
              nodes {
                id
                body
                createdAt
                author {
                  login
                  avatarUrl
                }
              }
            }
          }
        }
        reactionGroups {
          content
          users {
            totalCount
          }
        }
        author {
          login
          avatarUrl
        }
      }
    }
  }
`

const getDiscussionByNumberQuery = `
  query GetDiscussionByNumber($owner: String!, $name: String!, $number: Int!) {
    repository(owner: $owner, name: $name) {
      discussion(number: $number) {
        id
        number
        title
        body
        createdAt
        comments {
          totalCount
        }
        author {
          login
          avatarUrl
        }
      }
    }
  }
`

const findDiscussionByLocalIDQuery = `
  query FindDiscussionByLocalId($query: String!) {
    search(query: $query, type: DISCUSSION, first: 5) {
      nodes {
        ... on Discussion {
          id
          number
          title
          body
          createdAt
          comments {
            totalCount
          }
          author {
            login
            avatarUrl
          }
        }
      }
    }
  }
`

const userCommentsQuery = `
  query UserComments($query: String!) {
    search(query: $query, type: DISCUSSION, first: 50) {
      nodes {
        ... on Discussion {
          body
          comments(first: 100) {
            nodes {
              id
              body
              createdAt
              author {
                login
                avatarUrl
              }
            }
          }
        }
      }
    }
  }
`

type authorNode struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
}

type commentNode struct {
	ID        string     `json:"id"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"createdAt"`
	Author    authorNode `json:"author"`
	Replies   *struct {
		Nodes []commentNode `json:"nodes"`
	} `json:"replies,omitempty"`
}

type discussionNode struct {
	ID        string    `json:"id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	Comments  struct {
		TotalCount int           `json:"totalCount"`
		Nodes      []commentNode `json:"nodes"`
	} `json:"comments"`
	ReactionGroups []struct {
		Content string `json:"content"`
		Users   struct {
			TotalCount int `json:"totalCount"`
		} `json:"users"`
	} `json:"reactionGroups"`
	Author authorNode `json:"author"`
}

// postFromNode decodes a discussion node into a Post. The boolean is
// false when the body carries no valid embedded metadata: the item is
// not one of ours and is skipped, never reported as an error.
func postFromNode(node *discussionNode) (models.Post, bool) {
	meta, ok := codec.Decode(node.Body)
	if !ok {
		return models.Post{}, false
	}
	post := models.Post{
		ID:           node.ID,
		Number:       node.Number,
		Metadata:     *meta,
		Body:         codec.ExtractDisplayText(node.Body),
		Author:       models.User{Login: node.Author.Login, AvatarURL: node.Author.AvatarURL},
		CreatedAt:    node.CreatedAt,
		CommentCount: node.Comments.TotalCount,
		Comments:     commentsFromNodes(node.Comments.Nodes),
	}
	for _, group := range node.ReactionGroups {
		if group.Users.TotalCount == 0 {
			continue
		}
		post.Reactions = append(post.Reactions, models.ReactionGroup{
			Content: group.Content,
			Count:   group.Users.TotalCount,
		})
	}
	return post, true
}

func commentsFromNodes(nodes []commentNode) []models.Comment {
	if len(nodes) == 0 {
		return nil
	}
	comments := make([]models.Comment, 0, len(nodes))
	for _, node := range nodes {
		comment := models.Comment{
			ID:        node.ID,
			Body:      node.Body,
			Author:    models.User{Login: node.Author.Login, AvatarURL: node.Author.AvatarURL},
			CreatedAt: node.CreatedAt,
		}
		if node.Replies != nil {
			comment.Replies = commentsFromNodes(node.Replies.Nodes)
		}
		comments = append(comments, comment)
	}
	return comments
}

// FetchPosts returns the newest-first listing of posts in the
// configured category, skipping remote documents that do not carry our
// embedded metadata.
func (c *Client) FetchPosts(ctx context.Context, token string, first int) ([]models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "remote.fetch_posts")
	defer span.End()

	if first <= 0 {
		first = 25
	}

	data, err := c.Call(ctx, getDiscussionsQuery, map[string]interface{}{
		"owner":      c.owner,
		"name":       c.name,
		"categoryId": c.categoryID,
		"first":      first,
	}, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts: %w", err)
	}

	var response struct {
		Repository struct {
			Discussions struct {
				Nodes []discussionNode `json:"nodes"`
			} `json:"discussions"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal listing: %w", err)
	}

	posts := make([]models.Post, 0, len(response.Repository.Discussions.Nodes))
	for i := range response.Repository.Discussions.Nodes {
		if post, ok := postFromNode(&response.Repository.Discussions.Nodes[i]); ok {
			posts = append(posts, post)
		}
	}
	return posts, nil
}

// FetchPost returns a single post by remote identifier, with comments,
// nested replies and reaction tallies. Returns nil when the node is
// missing or does not decode as one of ours.
func (c *Client) FetchPost(ctx context.Context, token, discussionID string) (*models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "remote.fetch_post")
	defer span.End()

	data, err := c.Call(ctx, getDiscussionByIDQuery, map[string]interface{}{
		"id": discussionID,
	}, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch post %s: %w", discussionID, err)
	}

	var response struct {
		Node *discussionNode `json:"node"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}
	if response.Node == nil || response.Node.ID == "" {
		return nil, nil
	}
	post, ok := postFromNode(response.Node)
	if !ok {
		return nil, nil
	}
	return &post, nil
}

// FetchPostByNumber returns a single post by its human-facing sequence
// number.
func (c *Client) FetchPostByNumber(ctx context.Context, token string, number int) (*models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "remote.fetch_post_by_number")
	defer span.End()

	data, err := c.Call(ctx, getDiscussionByNumberQuery, map[string]interface{}{
		"owner":  c.owner,
		"name":   c.name,
		"number": number,
	}, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch post #%d: %w", number, err)
	}

	var response struct {
		Repository struct {
			Discussion *discussionNode `json:"discussion"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}
	if response.Repository.Discussion == nil {
		return nil, nil
	}
	post, ok := postFromNode(response.Repository.Discussion)
	if !ok {
		return nil, nil
	}
	return &post, nil
}

// FindByLocalID searches the remote store for a discussion whose
// embedded metadata matches localID. Remote identifiers are opaque and
// unpredictable, so the embedded localID is the only reliable join
// key; a search hit is verified against the decoded body before being
// trusted. The canonical post is returned alongside when available.
func (c *Client) FindByLocalID(ctx context.Context, token, localID string) (string, *models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "remote.find_by_local_id")
	defer span.End()

	query := fmt.Sprintf("repo:%s/%s %s", c.owner, c.name, localID)
	data, err := c.Call(ctx, findDiscussionByLocalIDQuery, map[string]interface{}{
		"query": query,
	}, token)
	if err != nil {
		return "", nil, fmt.Errorf("failed to search for %s: %w", localID, err)
	}

	var response struct {
		Search struct {
			Nodes []discussionNode `json:"nodes"`
		} `json:"search"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal search results: %w", err)
	}

	for i := range response.Search.Nodes {
		node := &response.Search.Nodes[i]
		meta, ok := codec.Decode(node.Body)
		if !ok || meta.LocalID != localID {
			continue
		}
		if post, ok := postFromNode(node); ok {
			return node.ID, &post, nil
		}
		return node.ID, nil, nil
	}
	return "", nil, nil
}

// FetchUserComments returns comments authored by login across our
// posts, skipping discussions that are not ours.
func (c *Client) FetchUserComments(ctx context.Context, token, login string) ([]models.Comment, error) {
	ctx, span := telemetry.StartSpan(ctx, "remote.fetch_user_comments")
	defer span.End()

	query := fmt.Sprintf("repo:%s/%s commenter:%s", c.owner, c.name, login)
	data, err := c.Call(ctx, userCommentsQuery, map[string]interface{}{
		"query": query,
	}, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comments for %s: %w", login, err)
	}

	var response struct {
		Search struct {
			Nodes []struct {
				Body     string `json:"body"`
				Comments struct {
					Nodes []commentNode `json:"nodes"`
				} `json:"comments"`
			} `json:"nodes"`
		} `json:"search"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search results: %w", err)
	}

	var comments []models.Comment
	for _, node := range response.Search.Nodes {
		if _, ok := codec.Decode(node.Body); !ok {
			continue
		}
		for _, comment := range commentsFromNodes(node.Comments.Nodes) {
			if strings.EqualFold(comment.Author.Login, login) {
				comments = append(comments, comment)
			}
		}
	}
	return comments, nil
}
