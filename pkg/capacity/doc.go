/*
Package capacity publishes the FleetIQ view of each game server group to the
intake topic.

For every configured group the poller pages through
DescribeGameServerInstances, resolves the private DNS name of each page's
instances with one DescribeInstances call, and writes the page as a single
JSON batch keyed by the group name:

	GameLift page ──▶ EC2 DescribeInstances ──▶ []InstanceRecord ──▶ Kafka (key = group)

Instances that have no private DNS name yet are skipped and pages that end
up empty are not published.
*/
package capacity
