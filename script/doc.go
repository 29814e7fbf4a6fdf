// Package script provides Lua admission rules for joins.
//
// A script defines a global admit function that receives the one-based list
// number and the member name, and returns whether the join may proceed plus
// an optional reason:
//
//	function admit(list, name)
//		if members.count(list) >= members.capacity() - 1 and name ~= "owner" then
//			return false, "last seat reserved"
//		end
//		return true
//	end
//
// Scripts read the store through the members table:
//   - members.count(n) returns the member count of list n
//   - members.list(n) returns the members of list n in join order
//   - members.lists() returns the number of lists
//   - members.capacity() returns the per-list capacity
//
// Only the base, table, string and math libraries are opened.
package script
