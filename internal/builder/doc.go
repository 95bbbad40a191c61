/*
Package builder turns resolved configs into the task graphs executed by the
scheduler. It is the bridge between the format-agnostic config model and the
execution engine.

A build graph is constructed in phases:

 1. Global fragments: "Removing old package" clears each config's package
    directory and "Creating directory structure" creates every source and
    artifact directory. The second depends on the first.

 2. Component fragments: every component gets a "Syncing git repo" fragment
    (depending on the directory structure) and a "Building" fragment that
    depends on its own sync and on the Building fragment of every component
    it depends on, either explicitly or through an artifact reference.

 3. Final fragment: one "Copying artifacts" fragment per config depends on the
    directory structure and on every Building fragment of that config.

Cycles between components surface as dag cycle errors when the graph is
validated at the end of construction.

A clean graph has the same global removal fragment followed by one
"Cleaning" fragment per selected component and, for deep cleans, a fragment
removing the component's source tree.

MakeScript flattens either graph into one shell script, used for dry runs and
for the build.sh written next to each package.
*/
package builder
