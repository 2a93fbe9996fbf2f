package gee

import "strings"

// node 是按 "/" 切段的路由前缀树。
//
// 同一层里静态段优先于 :param 和 *wildcard，
// 所以 /api/v1/keywords/:kw 不会被根上的 /:keyword 抢走。
type node struct {
	pattern  string // 只有路由终点非空，例如 /api/v1/stats/:keyword
	part     string
	children []*node
	isWild   bool // part 以 : 或 * 开头
}

func (n *node) child(part string) *node {
	for _, c := range n.children {
		if c.part == part {
			return c
		}
	}
	return nil
}

// hasStaticChild 忽略大小写，短码和路由前缀撞车时用。
func (n *node) hasStaticChild(part string) bool {
	for _, c := range n.children {
		if !c.isWild && strings.EqualFold(c.part, part) {
			return true
		}
	}
	return false
}

func (n *node) insert(pattern string, parts []string) {
	cur := n
	for _, part := range parts {
		next := cur.child(part)
		if next == nil {
			next = &node{part: part, isWild: part[0] == ':' || part[0] == '*'}
			cur.children = append(cur.children, next)
		}
		cur = next
	}
	cur.pattern = pattern
}

// search 深度优先，先走静态子节点再走通配子节点，走不通就回溯。
func (n *node) search(parts []string) *node {
	if len(parts) == 0 || strings.HasPrefix(n.part, "*") {
		if n.pattern == "" {
			return nil
		}
		return n
	}
	head, rest := parts[0], parts[1:]
	for _, c := range n.children {
		if !c.isWild && c.part == head {
			if found := c.search(rest); found != nil {
				return found
			}
		}
	}
	for _, c := range n.children {
		if c.isWild {
			if found := c.search(rest); found != nil {
				return found
			}
		}
	}
	return nil
}
